package appdu

// Handler receives parsed APPDU messages, one hook per message type.
// Implementations usually embed UnimplementedHandler and override the hooks
// they care about.
type Handler interface {
	OnNop(msg *Message)
	OnEntityIDRequest(msg *Message)
	OnEntityIDResponse(msg *Message)
	OnLinkUp(msg *Message)
	OnLinkDown(msg *Message)
	OnAvdeccFromAPS(msg *Message)
	OnAvdeccFromAPC(msg *Message)
	OnVendor(msg *Message)
}

// Dispatch routes msg to the matching Handler hook. Message types the parser
// does not produce are silently ignored.
func Dispatch(h Handler, msg *Message) {
	switch msg.Type {
	case TypeNop:
		h.OnNop(msg)
	case TypeEntityIDRequest:
		h.OnEntityIDRequest(msg)
	case TypeEntityIDResponse:
		h.OnEntityIDResponse(msg)
	case TypeLinkUp:
		h.OnLinkUp(msg)
	case TypeLinkDown:
		h.OnLinkDown(msg)
	case TypeAvdeccFromAPS:
		h.OnAvdeccFromAPS(msg)
	case TypeAvdeccFromAPC:
		h.OnAvdeccFromAPC(msg)
	case TypeVendor:
		h.OnVendor(msg)
	}
}

// UnimplementedHandler is a Handler whose hooks all do nothing.
type UnimplementedHandler struct{}

func (UnimplementedHandler) OnNop(*Message)              {}
func (UnimplementedHandler) OnEntityIDRequest(*Message)  {}
func (UnimplementedHandler) OnEntityIDResponse(*Message) {}
func (UnimplementedHandler) OnLinkUp(*Message)           {}
func (UnimplementedHandler) OnLinkDown(*Message)         {}
func (UnimplementedHandler) OnAvdeccFromAPS(*Message)    {}
func (UnimplementedHandler) OnAvdeccFromAPC(*Message)    {}
func (UnimplementedHandler) OnVendor(*Message)           {}

var _ Handler = UnimplementedHandler{}
