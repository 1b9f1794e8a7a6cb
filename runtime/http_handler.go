package runtime

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screenloom/session"
)

// HttpHandler serves the external surface: triggers in, interactions in,
// execution snapshots out.
type HttpHandler struct {
	engine     *Engine
	dispatcher *Dispatcher
	monitor    *session.Monitor
}

func NewHttpHandler(engine *Engine, dispatcher *Dispatcher, monitor *session.Monitor, gatherer prometheus.Gatherer, g *gin.Engine) *HttpHandler {
	h := &HttpHandler{engine: engine, dispatcher: dispatcher, monitor: monitor}

	g.GET("/flows", h.listFlows)
	g.GET("/buttons", h.listButtons)
	g.POST("/buttons/:flowId/press", h.pressButton)
	g.POST("/messages", h.scanMessage)
	g.POST("/flows/:flowId/start", h.startFlow)

	g.GET("/executions", h.listExecutions)
	g.GET("/executions/:id", h.getExecution)
	g.POST("/executions/:id/choose", h.choose)
	g.POST("/executions/:id/confirm", h.confirm)
	g.POST("/executions/:id/guess", h.guess)
	g.POST("/executions/:id/cancel", h.cancelExecution)

	g.POST("/emergency-stop", h.emergencyStop)

	g.GET("/session", h.getSession)
	g.PUT("/session/levels", h.setLevels)

	if gatherer != nil {
		g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return h
}

func (h *HttpHandler) listFlows(c *gin.Context) {
	type flowInfo struct {
		ID      string      `json:"id"`
		Name    string      `json:"name"`
		Trigger TriggerType `json:"trigger"`
	}
	var out []flowInfo
	for _, g := range h.dispatcher.Flows() {
		out = append(out, flowInfo{ID: g.ID, Name: g.Name, Trigger: g.Trigger.Type})
	}
	c.JSON(http.StatusOK, out)
}

func (h *HttpHandler) listButtons(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Buttons())
}

func (h *HttpHandler) pressButton(c *gin.Context) {
	id, err := h.dispatcher.PressButton(c.Param("flowId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"executionId": id})
}

func (h *HttpHandler) scanMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	started := h.dispatcher.ScanMessage(req.Text)
	c.JSON(http.StatusOK, gin.H{"started": started})
}

func (h *HttpHandler) startFlow(c *gin.Context) {
	var req struct {
		StartPageID string `json:"startPageId"`
	}
	// Body is optional; an empty one starts from the flow's start page.
	_ = c.ShouldBindJSON(&req)

	flowID := c.Param("flowId")
	g, ok := h.dispatcher.Flow(flowID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "unknown flow " + flowID})
		return
	}

	trig := Trigger{Type: TriggerPersonaAuto, Label: g.Name, SourceID: flowID}
	id, err := h.engine.StartAt(g, req.StartPageID, trig)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"executionId": id})
}

func (h *HttpHandler) listExecutions(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.List())
}

func (h *HttpHandler) getExecution(c *gin.Context) {
	snap, err := h.engine.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *HttpHandler) choose(c *gin.Context) {
	var req struct {
		Option *int `json:"option" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	h.interact(c, h.engine.Choose(c.Param("id"), *req.Option))
}

func (h *HttpHandler) confirm(c *gin.Context) {
	var req struct {
		OK *bool `json:"ok" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	h.interact(c, h.engine.Confirm(c.Param("id"), *req.OK))
}

func (h *HttpHandler) guess(c *gin.Context) {
	var req struct {
		Guess *int `json:"guess" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	h.interact(c, h.engine.Guess(c.Param("id"), *req.Guess))
}

func (h *HttpHandler) interact(c *gin.Context, err error) {
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *HttpHandler) cancelExecution(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by request"
	}

	if err := h.engine.Cancel(c.Param("id"), req.Reason); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (h *HttpHandler) emergencyStop(c *gin.Context) {
	if err := h.engine.EmergencyStop(c.Request.Context()); err != nil {
		// Executions are aborted regardless; report the device sweep error.
		c.JSON(http.StatusInternalServerError, gin.H{"status": "stopped", "deviceError": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *HttpHandler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"capacity": h.monitor.Level(session.LevelCapacity),
		"feeling":  h.monitor.Level(session.LevelFeeling),
		"emotion":  h.monitor.Emotion(),
	})
}

// setLevels is the session-side write path used by the surrounding chat
// system to push capacity/feeling/emotion changes.
func (h *HttpHandler) setLevels(c *gin.Context) {
	var req struct {
		Capacity *float64 `json:"capacity"`
		Feeling  *float64 `json:"feeling"`
		Emotion  *string  `json:"emotion"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if req.Capacity != nil {
		h.monitor.SetCapacity(*req.Capacity)
	}
	if req.Feeling != nil {
		h.monitor.SetFeeling(*req.Feeling)
	}
	if req.Emotion != nil {
		h.monitor.SetEmotion(*req.Emotion)
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
