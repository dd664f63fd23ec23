// Package transport exposes the perception-planning-actuation core over
// the network boundary: a REST surface for point-in-time queries and
// commands, and websocket streams for the live map and scan. Handlers
// call into modearbiter and slamcoordinator only through their public,
// mutex/queue-guarded surfaces; no transport-layer locking.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.viam.com/rdk/logging"

	"github.com/kats-org/roverd/actuator"
	"github.com/kats-org/roverd/modearbiter"
	"github.com/kats-org/roverd/occupancy"
	"github.com/kats-org/roverd/pose"
	"github.com/kats-org/roverd/scan"
)

const (
	mapStreamPeriod   = 500 * time.Millisecond
	lidarStreamPeriod = 166 * time.Millisecond

	writeWait  = 1 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Snapshotter is the read surface a transport Server needs from the SLAM
// pipeline. slamcoordinator.Coordinator satisfies this.
type Snapshotter interface {
	Position() pose.Pose
	Map() occupancy.Map
	LatestScan() scan.Scan
}

// Server hosts the REST and websocket surface over one http.Server.
type Server struct {
	httpServer  *http.Server
	coordinator Snapshotter
	arbiter     *modearbiter.Arbiter
	act         actuator.Actuator
	proj        occupancy.Projector
	logger      logging.Logger
}

// New builds a Server bound to addr (e.g. ":18080"). Call Serve to start
// accepting connections.
func New(addr string, coordinator Snapshotter, arbiter *modearbiter.Arbiter, act actuator.Actuator, proj occupancy.Projector, logger logging.Logger) *Server {
	s := &Server{coordinator: coordinator, arbiter: arbiter, act: act, proj: proj, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/lidar/data", s.handleLidarData).Methods(http.MethodGet)
	r.HandleFunc("/robot/position", s.handlePosition).Methods(http.MethodGet)
	r.HandleFunc("/arduino/send", s.handleArduinoSend).Methods(http.MethodPost)
	r.HandleFunc("/robot/target", s.handleRobotTarget).Methods(http.MethodPost)
	r.HandleFunc("/robot/mode", s.handleRobotMode).Methods(http.MethodPost)
	r.HandleFunc("/ws/map", s.handleWSMap)
	r.HandleFunc("/ws/lidar", s.handleWSLidar)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Serve blocks accepting connections until the server is shut down,
// matching the std http.Server.ListenAndServe contract.
func (s *Server) Serve() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler, for tests that want to
// drive requests through httptest without binding a real port.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// to drain or ctx to expire. Open websocket connections are hijacked, so
// Shutdown neither closes nor waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func writeError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Status: "error", Reason: reason})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

type pointXY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func scanToPoints(s scan.Scan) []pointXY {
	pts := make([]pointXY, len(s.Samples))
	for i, sample := range s.Samples {
		pts[i] = pointXY{X: sample.Point.X, Y: sample.Point.Y}
	}
	return pts
}

func (s *Server) handleLidarData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"points": scanToPoints(s.coordinator.LatestScan())})
}

type positionBody struct {
	XMM          float64 `json:"x_mm"`
	YMM          float64 `json:"y_mm"`
	ThetaDegrees float64 `json:"theta_degrees"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	p := s.coordinator.Position()
	writeJSON(w, http.StatusOK, positionBody{XMM: p.XMM, YMM: p.YMM, ThetaDegrees: p.ThetaDegrees})
}

type arduinoSendRequest struct {
	Data string `json:"data"`
}

func (s *Server) handleArduinoSend(w http.ResponseWriter, r *http.Request) {
	if s.arbiter.Mode() != modearbiter.Manual {
		writeError(w, http.StatusForbidden, "not in manual mode")
		return
	}

	var req arduinoSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := s.act.Send(r.Context(), req.Data); err != nil {
		s.logger.Warnw("arduino send failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type robotTargetRequest struct {
	XPixel int `json:"x_pixel"`
	YPixel int `json:"y_pixel"`
}

func (s *Server) handleRobotTarget(w http.ResponseWriter, r *http.Request) {
	if s.arbiter.Mode() != modearbiter.Manual {
		writeError(w, http.StatusForbidden, "not in manual mode")
		return
	}

	var req robotTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.XPixel < 0 || req.YPixel < 0 || req.XPixel >= s.proj.MapPixels || req.YPixel >= s.proj.MapPixels {
		writeError(w, http.StatusBadRequest, "target out of map bounds")
		return
	}

	goal := s.arbiter.CellForPixel(req.XPixel, req.YPixel)
	// Activation is asynchronous; the caller's outcome is observable only
	// through the streamed pose/map, never this response.
	go func() {
		if err := s.arbiter.ActivateTarget(context.Background(), goal); err != nil {
			s.logger.Debugw("target activation rejected", "error", err)
		}
	}()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type robotModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleRobotMode(w http.ResponseWriter, r *http.Request) {
	var req robotModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var err error
	switch req.Mode {
	case "manual":
		err = s.arbiter.SetManual(r.Context())
	case "explore":
		err = s.arbiter.SetExplore(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "mode must be \"manual\" or \"explore\"")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": s.arbiter.Mode().String()})
}

// streamConn runs the shared ping/pong keep-alive loop around a
// send-driven websocket stream, the discipline niceyeti-tabular's server
// uses to detect dead clients: a dedicated reader goroutine to pump
// control frames, a ticker to ping, and a pong channel to detect silence.
func streamConn(ws *websocket.Conn, logger logging.Logger, period time.Duration, send func() any) {
	defer closeWS(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pong := make(chan struct{}, 1)
	ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pinger.C:
			if time.Since(lastPong) > pingPeriod*2 {
				return
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-pong:
			lastPong = time.Now()
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(send()); err != nil {
				return
			}
		}
	}
}

func closeWS(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()
}

// mapRow is a raster row of occupancy bytes. encoding/json marshals a bare
// []byte as a base64 string, not a numeric array, so mapRow carries its own
// MarshalJSON to keep the wire shape [[byte,...], ...].
type mapRow []byte

func (r mapRow) MarshalJSON() ([]byte, error) {
	vals := make([]int, len(r))
	for i, b := range r {
		vals[i] = int(b)
	}
	return json.Marshal(vals)
}

type mapStreamBody struct {
	Map      []mapRow          `json:"map"`
	Position mapStreamPosition `json:"position"`
}

type mapStreamPosition struct {
	XPixel       int     `json:"x_pixel"`
	YPixel       int     `json:"y_pixel"`
	ThetaDegrees float64 `json:"theta_degrees"`
}

func (s *Server) handleWSMap(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws/map upgrade failed", "error", err)
		return
	}
	streamConn(ws, s.logger, mapStreamPeriod, func() any {
		m := s.coordinator.Map()
		p := s.coordinator.Position()
		px, py := s.proj.PixelForPose(p)

		rows := make([]mapRow, m.Pixels)
		for y := 0; y < m.Pixels; y++ {
			rows[y] = mapRow(m.Bytes[y*m.Pixels : (y+1)*m.Pixels])
		}
		return mapStreamBody{
			Map:      rows,
			Position: mapStreamPosition{XPixel: px, YPixel: py, ThetaDegrees: p.ThetaDegrees},
		}
	})
}

func (s *Server) handleWSLidar(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws/lidar upgrade failed", "error", err)
		return
	}
	streamConn(ws, s.logger, lidarStreamPeriod, func() any {
		return map[string]any{"points": scanToPoints(s.coordinator.LatestScan())}
	})
}

