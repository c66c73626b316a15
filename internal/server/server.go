package server

import (
	"fmt"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/prometheus/client_golang/prometheus"
)

type ServerType int

const (
	HTTP ServerType = iota
)

// A Server exposes the progress of a run while it is going on.
type Server interface {
	Init(port int, tracker *primer.Tracker, gatherer prometheus.Gatherer) error
}

func NewServer(serverType ServerType, port int, tracker *primer.Tracker, gatherer prometheus.Gatherer) (Server, error) {
	switch serverType {
	case HTTP:
		server := &httpServer{}
		return server, server.Init(port, tracker, gatherer)
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}
