package patcher

import (
	"context"
	"net"

	"github.com/fivefx/patcher/internal/nsm"
	"github.com/fivefx/patcher/internal/osc"
)

// Addresses of the patch operations.
const (
	PathNew   = "/patcher/new"
	PathSave  = "/patcher/save"
	PathLoad  = "/patcher/load"
	PathClear = "/patcher/clear"
)

// Router is the part of the OSC listener the handlers need.
type Router interface {
	Handle(address, types string, fn osc.HandlerFunc)
	Send(addr net.Addr, address string, args ...interface{}) error
}

// Register installs the patch operations and the manager's save callback
// on r. ctx is passed to the patch tool and is cancelled at shutdown.
func (a *App) Register(ctx context.Context, r Router) {
	r.Handle(nsm.PathSave, "", func(msg *osc.Message) error {
		err := a.SessionSave(ctx, "session")
		// The manager is acknowledged whatever the outcome.
		if sendErr := r.Send(msg.Source, nsm.PathReply, nsm.PathSave, nsm.ReplyOK); sendErr != nil {
			a.logger.Warn("save reply not sent", "err", sendErr)
		}
		return err
	})

	r.Handle(PathNew, "s", func(msg *osc.Message) error {
		name, _ := msg.String(0)
		return a.NewPatch(ctx, name, sourceOf(msg))
	})

	r.Handle(PathSave, "", func(msg *osc.Message) error {
		err := a.SavePatch(ctx, sourceOf(msg))
		if sendErr := r.Send(msg.Source, nsm.PathReply, PathSave, nsm.ReplyOK); sendErr != nil {
			a.logger.Warn("save reply not sent", "err", sendErr)
		}
		return err
	})

	r.Handle(PathLoad, "s", func(msg *osc.Message) error {
		name, _ := msg.String(0)
		return a.LoadPatch(ctx, name, sourceOf(msg))
	})

	r.Handle(PathClear, "", func(msg *osc.Message) error {
		return a.ClearPatch(ctx, sourceOf(msg))
	})
}

func sourceOf(msg *osc.Message) string {
	if msg.Source == nil {
		return ""
	}
	return msg.Source.String()
}
