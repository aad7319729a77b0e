package landmarks

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/study-eyes/backend/internal/camera"
)

// WorkerConfig configures the face-mesh sidecar process.
type WorkerConfig struct {
	Command             string
	Args                []string
	DetectionConfidence float64
	TrackingConfidence  float64
}

// Worker runs the dense face-mesh model in a sidecar process and speaks
// a line-delimited JSON protocol over its stdin/stdout:
//
//	→ {"width":640,"height":480,"pixels":"<base64 BGR>"}
//	← {"face":true,"points":[{"x":..,"y":..,"z":..},...]}
//	← {"face":false}
//
// The first line sent is a config record fixing the model to one tracked
// face with the given confidence thresholds. One Worker serves one
// tracking loop; calls are strictly sequential.
type Worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *zap.Logger
}

type workerConfigMsg struct {
	MaxFaces            int     `json:"max_faces"`
	RefineLandmarks     bool    `json:"refine_landmarks"`
	DetectionConfidence float64 `json:"min_detection_confidence"`
	TrackingConfidence  float64 `json:"min_tracking_confidence"`
}

type workerRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels string `json:"pixels"`
}

type workerResponse struct {
	Face   bool    `json:"face"`
	Points []Point `json:"points,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// NewWorker starts the sidecar and sends the model configuration.
func NewWorker(cfg WorkerConfig, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start facemesh worker: %w", err)
	}

	w := &Worker{cmd: cmd, stdin: stdin, stdout: bufio.NewReaderSize(stdout, 1<<20), logger: logger}

	init := workerConfigMsg{
		MaxFaces:            1,
		RefineLandmarks:     true,
		DetectionConfidence: cfg.DetectionConfidence,
		TrackingConfidence:  cfg.TrackingConfidence,
	}
	if err := w.writeJSON(init); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("send worker config: %w", err)
	}
	logger.Info("facemesh worker started",
		zap.String("command", cfg.Command),
		zap.Float64("detection_confidence", cfg.DetectionConfidence),
		zap.Float64("tracking_confidence", cfg.TrackingConfidence))
	return w, nil
}

// Extract sends one frame and blocks for the model's answer.
func (w *Worker) Extract(frame camera.RawFrame) (*LandmarkSet, error) {
	req := workerRequest{
		Width:  frame.Width,
		Height: frame.Height,
		Pixels: base64.StdEncoding.EncodeToString(frame.Pixels),
	}
	start := time.Now()
	if err := w.writeJSON(req); err != nil {
		return nil, fmt.Errorf("send frame: %w", err)
	}
	line, err := w.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read worker response: %w", err)
	}
	var resp workerResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("facemesh worker: %s", resp.Error)
	}
	if !resp.Face || len(resp.Points) == 0 {
		return nil, ErrNoFace
	}
	w.logger.Debug("landmarks extracted",
		zap.Int("points", len(resp.Points)),
		zap.Duration("latency", time.Since(start)))
	return &LandmarkSet{Points: resp.Points}, nil
}

// Close shuts the sidecar down. Closing stdin lets the worker exit
// cleanly; Wait reaps the process.
func (w *Worker) Close() error {
	_ = w.stdin.Close()
	return w.cmd.Wait()
}

func (w *Worker) writeJSON(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = w.stdin.Write(body)
	return err
}
