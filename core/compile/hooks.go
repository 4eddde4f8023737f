package compile

// Hook is one handler observing or mutating the compilation at a phase
// boundary. A returned error is collected on the compilation like any
// other structural error.
type Hook func(*Compilation) error

// Hooks are the ordered handler lists the pipeline invokes synchronously.
// Handlers run in registration order on the compilation itself; there is
// no global dispatch table.
type Hooks struct {
	BeforeSplit     []Hook
	AfterSplit      []Hook
	BeforeAssignIDs []Hook
	AfterAssignIDs  []Hook
	BeforeEmit      []Hook
	AfterEmit       []Hook
}

// Tap appends handlers to a phase list, keeping registration order.
func Tap(list *[]Hook, hooks ...Hook) {
	*list = append(*list, hooks...)
}

func (c *Compilation) runHooks(hooks []Hook) {
	for _, h := range hooks {
		if err := h(c); err != nil {
			c.AddError(err)
		}
	}
}
