package dag

import "github.com/iykyk-syn/narwhal"

// stateOp defines operations on the [Keeper] state machine
type stateOp[C narwhal.Certificate] struct {
	fn     func(*DAG[C])
	doneCh chan struct{}
}

func newStateOp[C narwhal.Certificate](fn func(*DAG[C])) *stateOp[C] {
	return &stateOp[C]{fn: fn, doneCh: make(chan struct{})}
}

// do executes the operation and notifies that operation has been done.
func (op *stateOp[C]) do(dag *DAG[C]) {
	op.fn(dag)
	close(op.doneCh)
}
