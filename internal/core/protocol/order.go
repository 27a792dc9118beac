package protocol

// OrderTracker enforces the stream ordering invariant on decoded messages:
// Hello first, group brackets properly nested, exactly one terminal message
// (MeasurementComplete or BenchSkip) per BenchBegin before the next begin,
// progress messages only inside their benchmark, Done last.
//
// The relay feeds every decoded message through Observe before forwarding
// it downstream, so an out-of-order stream aborts the run instead of
// producing a misleading report.
type OrderTracker struct {
	started    bool
	done       bool
	groupOpen  bool
	groupName  string
	benchOpen  bool
	currentKey string
	currentID  Identifier
}

func NewOrderTracker() *OrderTracker {
	return &OrderTracker{}
}

// Observe validates one message against the stream state. A nil result
// means the message is in order and may be forwarded.
func (t *OrderTracker) Observe(msg Message) *Error {
	if t.done {
		return t.violation("message after done", msg)
	}

	switch m := msg.(type) {
	case *Hello:
		if t.started {
			return t.violation("duplicate handshake", msg)
		}
		t.started = true

	case *GroupBegin:
		if err := t.requireIdle(msg); err != nil {
			return err
		}
		if t.groupOpen {
			return t.violation("group begin inside open group", msg)
		}
		t.groupOpen = true
		t.groupName = m.Group

	case *GroupFinish:
		if err := t.requireStarted(msg); err != nil {
			return err
		}
		if !t.groupOpen || t.benchOpen {
			return t.violation("group finish without matching begin", msg)
		}
		if m.Group != t.groupName {
			return t.violation("group finish name mismatch", msg).
				WithContext("open_group", t.groupName).
				WithContext("finished_group", m.Group)
		}
		t.groupOpen = false
		t.groupName = ""

	case *BenchBegin:
		if err := t.requireStarted(msg); err != nil {
			return err
		}
		if !t.groupOpen {
			return t.violation("benchmark begin outside group", msg)
		}
		if t.benchOpen {
			return t.violation("benchmark begin before previous terminal", msg).
				WithContext("open_benchmark", t.currentID.String())
		}
		t.benchOpen = true
		t.currentKey = m.ID.Key()
		t.currentID = m.ID

	case *Warmup:
		if err := t.requireBench(msg, m.ID); err != nil {
			return err
		}

	case *MeasurementStart:
		if err := t.requireBench(msg, m.ID); err != nil {
			return err
		}

	case *MeasurementComplete:
		if err := t.requireBench(msg, m.ID); err != nil {
			return err
		}
		if len(m.Values) != m.Config.SampleSize {
			return NewProtocolError(ErrorCodeMalformedFrame, "values length does not match sample size", ErrMalformedFrame).
				WithContext("benchmark", m.ID.String()).
				WithContext("values", len(m.Values)).
				WithContext("sample_size", m.Config.SampleSize)
		}
		t.benchOpen = false
		t.currentKey = ""

	case *BenchSkip:
		if err := t.requireBench(msg, m.ID); err != nil {
			return err
		}
		t.benchOpen = false
		t.currentKey = ""

	case *Done:
		if err := t.requireIdle(msg); err != nil {
			return err
		}
		if t.groupOpen {
			return t.violation("done inside open group", msg)
		}
		t.done = true

	default:
		return NewProtocolError(ErrorCodeUnknownMessageType, "unhandled message variant", ErrUnknownMessageType).
			WithContext("kind", string(msg.Kind()))
	}

	return nil
}

// Finished reports whether Done has been observed.
func (t *OrderTracker) Finished() bool {
	return t.done
}

// InBenchmark returns the identifier of the currently open benchmark, if any.
func (t *OrderTracker) InBenchmark() (Identifier, bool) {
	return t.currentID, t.benchOpen
}

func (t *OrderTracker) requireStarted(msg Message) *Error {
	if !t.started {
		return t.violation("message before handshake", msg)
	}
	return nil
}

func (t *OrderTracker) requireIdle(msg Message) *Error {
	if err := t.requireStarted(msg); err != nil {
		return err
	}
	if t.benchOpen {
		return t.violation("message inside open benchmark", msg).
			WithContext("open_benchmark", t.currentID.String())
	}
	return nil
}

func (t *OrderTracker) requireBench(msg Message, id Identifier) *Error {
	if err := t.requireStarted(msg); err != nil {
		return err
	}
	if !t.benchOpen {
		return t.violation("message outside benchmark", msg)
	}
	if id.Key() != t.currentKey {
		return t.violation("identifier does not match open benchmark", msg).
			WithContext("open_benchmark", t.currentID.String()).
			WithContext("got", id.String())
	}
	return nil
}

func (t *OrderTracker) violation(reason string, msg Message) *Error {
	return NewProtocolError(ErrorCodeOutOfOrder, reason, ErrOutOfOrder).
		WithContext("kind", string(msg.Kind()))
}
