// README: Websocket streams: ride observation, the rider screen session and the driver dashboard.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quickauto/internal/http/middleware"
	"quickauto/internal/modules/dispatch"
	"quickauto/internal/modules/ride"
	"quickauto/internal/modules/rider"
	"quickauto/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamMessage is the envelope written to every stream.
type streamMessage struct {
	Type    string           `json:"type"`
	Ride    *ride.Ride       `json:"ride,omitempty"`
	Deleted bool             `json:"deleted,omitempty"`
	State   *rider.State     `json:"state,omitempty"`
	Rides   []dispatch.Entry `json:"rides,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// sessionCommand is what the rider screen sends over its socket.
type sessionCommand struct {
	Type          string      `json:"type"`
	Trip          *rider.Trip `json:"trip,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
}

const (
	cmdTrip     = "trip"
	cmdIncrease = "increase"
	cmdSubmit   = "submit"
	cmdCancel   = "cancel"
	cmdPay      = "pay"
)

type StreamHandler struct {
	rides    *ride.Service
	dispatch *dispatch.Service
	log      *logrus.Logger
}

func NewStreamHandler(rides *ride.Service, dispatchSvc *dispatch.Service, log *logrus.Logger) *StreamHandler {
	return &StreamHandler{rides: rides, dispatch: dispatchSvc, log: log}
}

// ObserveRide streams the ride's current state, then every change, until it is deleted.
func (h *StreamHandler) ObserveRide(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), ref)
	if err != nil {
		writeModuleError(c, err)
		return
	}
	if !canView(c, r) {
		writeModuleError(c, ride.ErrForbidden)
		return
	}
	conn, ctx, done := h.open(c, "observe")
	if conn == nil {
		return
	}
	defer done()

	snaps, err := h.rides.Observe(ctx, ref)
	if err != nil {
		h.fail(conn, err)
		return
	}
	in := readLoop(ctx, conn)
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in:
			if !ok {
				return
			}
		case snap, ok := <-snaps:
			if !ok {
				closeNormal(conn)
				return
			}
			r := snap.Ride
			if err := send(conn, streamMessage{Type: "snapshot", Ride: &r, Deleted: snap.Deleted}); err != nil {
				return
			}
		case <-ping.C:
			if err := sendPing(conn); err != nil {
				return
			}
		}
	}
}

// RiderSession runs one rider screen over a socket: commands in, screen state out.
// Closing the socket stops the session's timers.
func (h *StreamHandler) RiderSession(c *gin.Context) {
	cat, ok := parseCategory(c)
	if !ok {
		return
	}
	uid := middleware.CallerUID(c)
	conn, ctx, done := h.open(c, "rider")
	if conn == nil {
		return
	}
	defer done()

	sess := rider.NewSession(h.rides, cat, uid, h.rides.Timeouts().For(cat), rider.WithLogger(h.log))
	defer sess.Close()

	initial := sess.State()
	if err := send(conn, streamMessage{Type: "state", State: &initial}); err != nil {
		return
	}
	in := readLoop(ctx, conn)
	updates := sess.Updates()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			if err := h.runCommand(ctx, sess, raw); err != nil {
				_, msg := classify(err)
				if err := send(conn, streamMessage{Type: "error", Error: msg}); err != nil {
					return
				}
			}
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := send(conn, streamMessage{Type: "state", State: &st}); err != nil {
				return
			}
		case <-ping.C:
			if err := sendPing(conn); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) runCommand(ctx context.Context, sess *rider.Session, raw []byte) error {
	var cmd sessionCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return ride.ErrValidation
	}
	switch cmd.Type {
	case cmdTrip:
		if cmd.Trip == nil {
			return ride.ErrValidation
		}
		sess.SetTrip(*cmd.Trip)
		return nil
	case cmdIncrease:
		sess.IncreaseAmount()
		return nil
	case cmdSubmit:
		_, err := sess.Submit(ctx)
		return err
	case cmdCancel:
		return sess.Cancel(ctx)
	case cmdPay:
		_, err := sess.Pay(ctx, cmd.TransactionID)
		return err
	default:
		return ride.ErrValidation
	}
}

// DriverDashboard pushes the driver's dashboard on connect and again after every ride change.
func (h *StreamHandler) DriverDashboard(c *gin.Context) {
	driverID := middleware.CallerUID(c)
	conn, ctx, done := h.open(c, "driver")
	if conn == nil {
		return
	}
	defer done()

	changes, err := h.rides.Changes(ctx)
	if err != nil {
		h.fail(conn, err)
		return
	}
	in := readLoop(ctx, conn)
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	// graceExpiry fires when the earliest grace window ends and that ride should drop off the list.
	var graceExpiry <-chan time.Time
	push := func() error {
		entries, err := h.dispatch.Dashboard(ctx, driverID)
		if err != nil {
			_, msg := classify(err)
			return send(conn, streamMessage{Type: "error", Error: msg})
		}
		graceExpiry = nil
		if until, ok := dispatch.NextGraceExpiry(entries); ok {
			graceExpiry = time.After(time.Until(until))
		}
		return send(conn, streamMessage{Type: "dashboard", Rides: entries})
	}
	if err := push(); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in:
			if !ok {
				return
			}
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := push(); err != nil {
				return
			}
		case <-graceExpiry:
			if err := push(); err != nil {
				return
			}
		case <-ping.C:
			if err := sendPing(conn); err != nil {
				return
			}
		}
	}
}

// open upgrades the request. The returned func closes the socket and cancels ctx.
func (h *StreamHandler) open(c *gin.Context, kind string) (*websocket.Conn, context.Context, func()) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithFields(logrus.Fields{"stream": kind, "error": err}).Warn("websocket upgrade failed")
		return nil, nil, nil
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	gauge := observability.StreamsOpen.WithLabelValues(kind)
	gauge.Inc()
	h.log.WithFields(logrus.Fields{"stream": kind, "uid": middleware.CallerUID(c)}).Debug("stream opened")
	return conn, ctx, func() {
		cancel()
		_ = conn.Close()
		gauge.Dec()
	}
}

func (h *StreamHandler) fail(conn *websocket.Conn, err error) {
	h.log.WithError(err).Warn("stream setup failed")
	_, msg := classify(err)
	_ = send(conn, streamMessage{Type: "error", Error: msg})
	closeNormal(conn)
}

// readLoop delivers inbound text frames until the peer goes away or ctx ends.
func readLoop(ctx context.Context, conn *websocket.Conn) <-chan []byte {
	in := make(chan []byte)
	go func() {
		defer close(in)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case in <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return in
}

func send(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func sendPing(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
