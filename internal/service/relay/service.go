package relay

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/anon-relay/internal/app"
	svcErr "github.com/oggyb/anon-relay/internal/errors"
	"github.com/oggyb/anon-relay/internal/realtime"
)

// Service implements the Relay gRPC API for chat network adapters.
// Each inbound event is handed to the dispatcher; outbound traffic for users
// without a websocket reaches the adapter through Subscribe.
type Service struct {
	appCtx   *app.AppContext
	validate *validator.Validate
}

var _ RelayServer = (*Service)(nil)

func NewRelayService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		validate: newValidator(),
	}
}

// OnCommand runs a slash command for the user.
//
// Example:
//
//	svc.OnCommand(ctx, &CommandRequest{UserID: 42, Command: "/search"})
func (s *Service) OnCommand(ctx context.Context, req *CommandRequest) (*Ack, error) {
	s.appCtx.Logger.Debug("OnCommand called", "user_id", req.UserID, "command", req.Command)

	if err := s.validate.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Dispatcher.OnCommand(ctx, req.UserID, req.Command, req.Args); err != nil {
		s.appCtx.Logger.Error("OnCommand failed", "user_id", req.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &Ack{OK: true}, nil
}

// OnText handles a text message: a gender choice during registration, a menu
// button, or chat content for the partner.
func (s *Service) OnText(ctx context.Context, req *TextRequest) (*Ack, error) {
	s.appCtx.Logger.Debug("OnText called", "user_id", req.UserID)

	if err := s.validate.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Dispatcher.OnText(ctx, req.UserID, req.DisplayName, req.Text); err != nil {
		s.appCtx.Logger.Error("OnText failed", "user_id", req.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &Ack{OK: true}, nil
}

func (s *Service) OnMedia(ctx context.Context, req *MediaRequest) (*Ack, error) {
	s.appCtx.Logger.Debug("OnMedia called", "user_id", req.UserID, "kind", req.Content.Kind)

	if err := s.validate.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if req.Content.Kind == "" {
		return nil, svcErr.InvalidArgument("content.kind is required")
	}
	if err := s.appCtx.Dispatcher.OnMedia(ctx, req.UserID, req.Content); err != nil {
		s.appCtx.Logger.Error("OnMedia failed", "user_id", req.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &Ack{OK: true}, nil
}

// ReportUndeliverable is called by an adapter whose network rejected a
// delivery, for example because the recipient blocked the bot.
func (s *Service) ReportUndeliverable(ctx context.Context, req *UndeliverableRequest) (*Ack, error) {
	s.appCtx.Logger.Debug("ReportUndeliverable called", "user_id", req.UserID, "partner_id", req.PartnerID)

	if err := s.validate.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Matchmaker.ReportUnreachable(ctx, req.UserID, req.PartnerID); err != nil {
		s.appCtx.Logger.Error("ReportUndeliverable failed", "user_id", req.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &Ack{OK: true}, nil
}

// Stats reports users per state and lifecycle event counters.
func (s *Service) Stats(ctx context.Context, _ *StatsRequest) (*structpb.Struct, error) {
	st, err := s.appCtx.Matchmaker.Stats(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	users := make(map[string]any, len(st.Users))
	for status, n := range st.Users {
		users[string(status)] = n
	}
	evs := make(map[string]any, len(st.Events))
	for name, n := range st.Events {
		evs[name] = n
	}
	out, err := structpb.NewStruct(map[string]any{
		"users":  users,
		"events": evs,
		"online": s.appCtx.Hub.OnlineCount(),
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return out, nil
}

// Subscribe registers the caller as a bridge and streams deliveries until the
// client goes away or the hub shuts down. The first frame is TypeSubscribed.
func (s *Service) Subscribe(req *SubscribeRequest, stream grpc.ServerStreamingServer[realtime.Delivery]) error {
	if err := s.validate.Struct(req); err != nil {
		return svcErr.Map(err)
	}

	bridge := s.appCtx.Hub.Subscribe(req.Buffer)
	defer s.appCtx.Hub.Unsubscribe(bridge)
	log := s.appCtx.Logger.With("bridge_id", bridge.ID)
	log.Info("bridge subscribed")

	if err := stream.Send(&realtime.Delivery{Type: realtime.TypeSubscribed}); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			log.Info("bridge unsubscribed")
			return nil
		case d, ok := <-bridge.C():
			if !ok {
				return svcErr.Unavailable("relay shutting down")
			}
			if err := stream.Send(&d); err != nil {
				log.Warn("bridge send failed", "user_id", d.UserID, "err", err)
				return err
			}
		}
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
