package ghs

// dispatch runs the handler of msg. It reports true when the message must be parked.
func (n *Node) dispatch(msg Message) (bool, error) {
	switch msg.Type {
	case MsgConnect:
		return n.onConnect(msg.From, msg.Level)
	case MsgInitiate:
		return false, n.onInitiate(msg.From, msg.Level, msg.Fragment, msg.State)
	case MsgTest:
		return n.onTest(msg.From, msg.Level, msg.Fragment)
	case MsgAccept:
		return false, n.onAccept(msg.From)
	case MsgReject:
		return false, n.onReject(msg.From)
	case MsgReport:
		return n.onReport(msg.From, msg.Weight)
	case MsgChangeRoot:
		return false, n.changeRoot()
	case MsgPrint:
		return false, n.print(msg.From)
	default:
		return false, ErrUnknownMessage
	}
}

func (n *Node) wakeup(spontaneous bool) error {
	if n.state != Sleeping {
		return nil
	}
	n.emit(WakeupEvent{Spontaneous: spontaneous})

	e, ok := n.edges.Min()
	if !ok {
		// single node graph
		n.state = Found
		n.declared = true
		n.emit(TerminatedEvent{Level: n.level, Fragment: n.fragment})
		return n.print(None)
	}
	e.Class = Branch
	n.level = 0
	n.state = Found
	n.findCount = 0
	n.trace("wakeup")
	return n.send(e.Peer, Connect(n.id, 0))
}

func (n *Node) onConnect(src NodeID, level int) (bool, error) {
	if err := n.wakeup(false); err != nil {
		return false, err
	}
	e := n.edges.mustGet(src)
	if level < n.level {
		// absorb the lower fragment
		e.Class = Branch
		if err := n.send(src, Initiate(n.id, n.level, n.fragment, n.state)); err != nil {
			return false, err
		}
		if n.state == Find {
			n.findCount++
		}
		n.trace("absorbed " + Connect(src, level).String())
		return false, nil
	}
	if e.Class == Basic {
		return true, nil
	}
	// equal level and both ends chose this edge: it becomes the new core
	return false, n.send(src, Initiate(n.id, n.level+1, e.Weight, Find))
}

func (n *Node) onInitiate(src NodeID, level int, fragment Weight, state NodeState) error {
	if level < n.level {
		return ErrLevelRegression
	}
	n.level = level
	n.fragment = fragment
	n.state = state
	n.inBranch = src
	n.bestEdge = None
	n.bestWeight = Infinity
	n.emit(LevelEvent{Level: level, Fragment: fragment, State: state, Parent: src})
	n.trace("initiate")

	for _, e := range n.edges.Branches() {
		if e.Peer == src {
			continue
		}
		if err := n.send(e.Peer, Initiate(n.id, level, fragment, state)); err != nil {
			return err
		}
		if state == Find {
			n.findCount++
		}
	}
	if state == Find {
		return n.test()
	}
	return nil
}

func (n *Node) test() error {
	e, ok := n.edges.MinBasic()
	if !ok {
		n.testEdge = None
		return n.report()
	}
	n.testEdge = e.Peer
	return n.send(e.Peer, Test(n.id, n.level, n.fragment))
}

func (n *Node) onTest(src NodeID, level int, fragment Weight) (bool, error) {
	if err := n.wakeup(false); err != nil {
		return false, err
	}
	if level > n.level {
		return true, nil
	}
	if fragment != n.fragment {
		return false, n.send(src, Accept(n.id))
	}
	e := n.edges.mustGet(src)
	if e.Class == Basic {
		e.Class = Rejected
	}
	if n.testEdge != src {
		return false, n.send(src, Reject(n.id))
	}
	return false, n.test()
}

func (n *Node) onAccept(src NodeID) error {
	n.testEdge = None
	e := n.edges.mustGet(src)
	if e.Weight < n.bestWeight {
		n.bestEdge = src
		n.bestWeight = e.Weight
	}
	return n.report()
}

func (n *Node) onReject(src NodeID) error {
	e := n.edges.mustGet(src)
	if e.Class == Basic {
		e.Class = Rejected
	}
	return n.test()
}

func (n *Node) report() error {
	if n.findCount != 0 || n.testEdge != None {
		return nil
	}
	if n.state != Find {
		return ErrDoubleReport
	}
	n.state = Found
	n.trace("report")
	n.emit(ReportEvent{To: n.inBranch, Weight: n.bestWeight})
	return n.send(n.inBranch, Report(n.id, n.bestWeight))
}

func (n *Node) onReport(src NodeID, w Weight) (bool, error) {
	if src != n.inBranch {
		if e := n.edges.mustGet(src); e.Class != Branch {
			return false, ErrUnexpectedReport
		}
		n.findCount--
		if n.findCount < 0 {
			return false, ErrNegativeCount
		}
		if w < n.bestWeight {
			n.bestWeight = w
			n.bestEdge = src
		}
		return false, n.report()
	}
	if n.state == Find {
		return true, nil
	}
	switch {
	case w > n.bestWeight:
		return false, n.changeRoot()
	case w == Infinity && n.bestWeight == Infinity:
		return false, n.detectHalt()
	}
	return false, nil
}

func (n *Node) changeRoot() error {
	if n.bestEdge == None {
		return ErrNoBestEdge
	}
	e := n.edges.mustGet(n.bestEdge)
	if e.Class == Branch {
		return n.send(e.Peer, ChangeRoot(n.id))
	}
	e.Class = Branch
	return n.send(e.Peer, Connect(n.id, n.level))
}

// detectHalt runs on both ends of the final core edge. The smaller id declares.
func (n *Node) detectHalt() error {
	if n.id > n.inBranch {
		n.trace("halt detected, waiting for print")
		return nil
	}
	n.declared = true
	n.log.Info().Int("ln", n.level).Stringer("fn", n.fragment).Msg("termination declared")
	n.emit(TerminatedEvent{Level: n.level, Fragment: n.fragment})
	return n.print(None)
}

// print halts the node and forwards the traversal to every branch but the one it came from.
func (n *Node) print(from NodeID) error {
	n.halted = true
	branches := n.edges.Branches()
	n.emit(HaltEvent{Branches: len(branches)})
	for _, e := range branches {
		n.log.Info().Int("neighbor", int(e.Peer)).Stringer("weight", e.Weight).Msg("tree edge")
		n.emit(TreeEdgeEvent{Neighbor: e.Peer, Weight: e.Weight})
	}
	for _, e := range branches {
		if e.Peer == from {
			continue
		}
		if err := n.send(e.Peer, Print(n.id)); err != nil {
			return err
		}
	}
	return nil
}
