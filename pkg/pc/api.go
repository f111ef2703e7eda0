package pc

import (
	"errors"
	"fmt"

	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// API creates peer connections and tracks against one engine. Session tags
// come from the engine's event bus by default, so several APIs may share an
// engine without their tags colliding.
type API struct {
	engine        bridge.Engine
	tags          bridge.TagGenerator
	loggerFactory logging.LoggerFactory
}

// WithTagGenerator replaces the bus counter. g must not repeat tags handed
// out by any other API on the same engine.
func WithTagGenerator(g bridge.TagGenerator) func(*API) {
	return func(a *API) { a.tags = g }
}

// WithLoggerFactory sets the factory used for every entity's logger.
func WithLoggerFactory(f logging.LoggerFactory) func(*API) {
	return func(a *API) { a.loggerFactory = f }
}

// NewAPI binds an API to engine.
func NewAPI(engine bridge.Engine, options ...func(*API)) *API {
	a := &API{engine: engine}
	for _, o := range options {
		o(a)
	}
	if a.tags == nil {
		a.tags = &bridge.Counter{}
		if engine != nil {
			if bus := engine.Events(); bus != nil {
				a.tags = bus
			}
		}
	}
	if a.loggerFactory == nil {
		a.loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return a
}

// Engine returns the engine the API talks to.
func (a *API) Engine() bridge.Engine { return a.engine }

// LoggerFactory returns the factory used for entity loggers.
func (a *API) LoggerFactory() logging.LoggerFactory { return a.loggerFactory }

// NewTrack wraps an engine track description, such as one returned by
// getUserMedia.
func (a *API) NewTrack(info bridge.TrackInfo) (*MediaStreamTrack, error) {
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("new track: %w", err)
	}
	return newMediaStreamTrack(a.engine, info, a.loggerFactory.NewLogger("track")), nil
}

// NewPeerConnection creates a peer connection. Nil arguments select
// DefaultConfiguration and empty constraints.
func (a *API) NewPeerConnection(config *Configuration, constraints *MediaConstraints) (*PeerConnection, error) {
	if a.engine == nil {
		return nil, errors.New("pc: API has no engine")
	}
	cfg := DefaultConfiguration()
	if config != nil {
		cfg = *config
	}
	var mc MediaConstraints
	if constraints != nil {
		mc = *constraints
	}
	return newPeerConnection(a, cfg, mc), nil
}
