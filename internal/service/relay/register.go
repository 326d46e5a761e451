package relay

import (
	"google.golang.org/grpc"

	"github.com/oggyb/anon-relay/internal/app"
)

// Registrar ties the Relay service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Relay service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Relay service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterRelayServer(s, NewRelayService(r.appCtx))
}
