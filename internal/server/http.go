package server

import (
	"fmt"
	"net/http"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type httpServer struct {
	runId   string
	tracker *primer.Tracker

	router *gin.Engine
}

func (h *httpServer) Init(port int, tracker *primer.Tracker, gatherer prometheus.Gatherer) error {
	h.setup(tracker, gatherer)
	go h.router.Run(fmt.Sprintf("localhost:%d", port))
	return nil
}

func (h *httpServer) setup(tracker *primer.Tracker, gatherer prometheus.Gatherer) {
	h.runId = uniuri.New()
	h.tracker = tracker

	router := gin.Default()

	router.GET("/status", h.getStatus)
	router.GET("/results", h.getResults)
	router.GET("/result", h.getResult)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h.router = router
}

type statusResponse struct {
	RunId  string  `json:"runId"`
	Uptime float64 `json:"uptime"`

	Bisection *primer.BisectionSnapshot `json:"bisection,omitempty"`

	Results int  `json:"results"`
	Done    bool `json:"done"`
}

func (h *httpServer) getStatus(c *gin.Context) {
	status := statusResponse{
		RunId:   h.runId,
		Uptime:  h.tracker.Uptime().Seconds(),
		Results: len(h.tracker.Results()),
	}
	if snap, ok := h.tracker.Bisection(); ok {
		status.Bisection = &snap
	}
	_, status.Done = h.tracker.Located()
	c.JSON(http.StatusOK, status)
}

func (h *httpServer) getResults(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Results())
}

func (h *httpServer) getResult(c *gin.Context) {
	if oc, found := h.tracker.Located(); found {
		c.JSON(http.StatusOK, oc)
	} else {
		c.AbortWithStatus(http.StatusNotFound)
	}
}
