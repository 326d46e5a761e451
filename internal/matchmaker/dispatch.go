package matchmaker

import (
	"context"
	"log/slog"
	"strings"
)

// Commands understood by the dispatcher.
const (
	CmdStart  = "start"
	CmdSearch = "search"
	CmdNext   = "next"
	CmdStop   = "stop"
	CmdStats  = "stats"
)

// Dispatcher turns transport events into Matchmaker operations. Menu buttons
// are recognized before anything is treated as chat content.
type Dispatcher struct {
	mm         *Matchmaker
	operatorID int64
	log        *slog.Logger
}

func NewDispatcher(mm *Matchmaker, operatorID int64, log *slog.Logger) *Dispatcher {
	return &Dispatcher{mm: mm, operatorID: operatorID, log: log}
}

// OnCommand handles /start, /search, /next, /stop and the operator-only /stats.
func (d *Dispatcher) OnCommand(ctx context.Context, userID int64, command string, args []string) error {
	cmd := NormalizeCommand(command)
	d.log.Debug("command", "user_id", userID, "command", cmd, "args", len(args))

	switch cmd {
	case CmdStart:
		return d.mm.Start(ctx, userID)
	case CmdSearch:
		return d.mm.FindPartner(ctx, userID)
	case CmdNext:
		return d.mm.Next(ctx, userID)
	case CmdStop:
		return d.mm.Stop(ctx, userID)
	case CmdStats:
		if d.operatorID != 0 && userID == d.operatorID {
			s, err := d.mm.Stats(ctx)
			if err != nil {
				return err
			}
			d.mm.send(ctx, userID, Reply{Text: msgStats(s)})
			return nil
		}
	}
	d.mm.send(ctx, userID, Reply{Text: msgHelp})
	return nil
}

// OnText handles free text. Unregistered users are mid-registration, so their
// text is a gender selection.
func (d *Dispatcher) OnText(ctx context.Context, userID int64, displayName, text string) error {
	registered, err := d.mm.IsRegistered(ctx, userID)
	if err != nil {
		return err
	}
	if !registered {
		return d.mm.Register(ctx, userID, displayName, text)
	}

	switch strings.TrimSpace(text) {
	case FindPartnerButton:
		return d.mm.FindPartner(ctx, userID)
	case MyProfileButton:
		return d.mm.ShowProfile(ctx, userID)
	}
	return d.mm.Relay(ctx, userID, Content{Kind: KindText, Text: text})
}

// OnMedia relays non-text content unchanged.
func (d *Dispatcher) OnMedia(ctx context.Context, userID int64, c Content) error {
	return d.mm.Relay(ctx, userID, c)
}

// NormalizeCommand maps "/Next@SomeBot" to "next".
func NormalizeCommand(command string) string {
	cmd := strings.TrimPrefix(strings.TrimSpace(command), "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}
