package vpn

import (
	"context"
	"fmt"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
)

// UserInputSlot is one pending request for user input, such as a
// username, a password or a challenge response. It is obtained from
// Session.FetchUserInputSlots and answered with Provide.
type UserInputSlot struct {
	node *proxy.SessionNode
	req  proxy.UserInputRequest
}

// newUserInputSlot fetches the request with the given ID and verifies
// that the daemon answered for the slot that was asked for.
func newUserInputSlot(ctx context.Context, node *proxy.SessionNode, tg proxy.TypeGroup, id uint32) (*UserInputSlot, error) {
	req, err := node.UserInputQueueFetch(ctx, tg, id)
	if err != nil {
		return nil, err
	}
	if req.Type != tg.Type || req.Group != tg.Group || req.ID != id {
		return nil, fmt.Errorf("%w: asked for %s #%d, got %s #%d",
			common.ErrUserInputSlotMismatch, tg, id, req.TypeGroup(), req.ID)
	}
	return &UserInputSlot{node: node, req: req}, nil
}

// Provide sends value as the answer to this slot.
func (s *UserInputSlot) Provide(ctx context.Context, value string) error {
	return s.node.UserInputProvide(ctx, s.req.TypeGroup(), s.req.ID, value)
}

func (s *UserInputSlot) TypeGroup() proxy.TypeGroup {
	return s.req.TypeGroup()
}

func (s *UserInputSlot) ID() uint32 {
	return s.req.ID
}

// VariableName is the daemon's name for the requested value, for
// example "username" or "password".
func (s *UserInputSlot) VariableName() string {
	return s.req.Name
}

// Label is the human readable prompt for the value.
func (s *UserInputSlot) Label() string {
	return s.req.Description
}

// Masked reports whether the value should not be echoed while typed.
func (s *UserInputSlot) Masked() bool {
	return s.req.HiddenInput
}

func (s *UserInputSlot) String() string {
	return fmt.Sprintf("%s #%d (%s)", s.req.TypeGroup(), s.req.ID, s.req.Name)
}
