// Command server exposes export_clip (spec §6) and the supplemented
// export/cache/file endpoints over HTTP, the same net/http.ServeMux +
// manual JSON decode/encode style the teacher's main.go uses, generalized
// from audio-mix endpoints to clip-export endpoints.
package main

import (
	"archive/zip"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/clipsmith/pipeline/internal/audioextract"
	"github.com/clipsmith/pipeline/internal/captions"
	"github.com/clipsmith/pipeline/internal/config"
	"github.com/clipsmith/pipeline/internal/mediaprobe"
	"github.com/clipsmith/pipeline/internal/pipeline"
	"github.com/clipsmith/pipeline/internal/planner"
	"github.com/clipsmith/pipeline/internal/render"
	"github.com/clipsmith/pipeline/internal/vad"
	"github.com/clipsmith/pipeline/internal/vision"
)

// server holds the wired pipeline plus the admission semaphore that bounds
// concurrent renders (spec §5: "the pipeline itself does not do this; the
// orchestrator's caller controls admission").
type server struct {
	cfg      config.Config
	pipe     *pipeline.Pipeline
	analyzer *vad.Analyzer
	admit    chan struct{}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	ffmpegFlag := flag.String("ffmpeg", "", "Path to ffmpeg executable")
	ffprobeFlag := flag.String("ffprobe", "", "Path to ffprobe executable")
	dataDirFlag := flag.String("data-dir", ".", "Root directory for cache, scratch, and output")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dataDirFlag != "." {
		cfg.DataDir = *dataDirFlag
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
		cfg.OutputDir = filepath.Join(cfg.DataDir, "output")
		cfg.ScratchDir = filepath.Join(cfg.DataDir, "cache", "scratch")
		cfg.VADCacheDir = filepath.Join(cfg.DataDir, "cache", "vad")
	}
	if *ffmpegFlag != "" {
		cfg.FFmpegPath = *ffmpegFlag
	}
	if *ffprobeFlag != "" {
		cfg.FFprobePath = *ffprobeFlag
	}

	for _, dir := range []string{cfg.CacheDir, cfg.OutputDir, cfg.ScratchDir, cfg.VADCacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create dir %s: %v", dir, err)
		}
	}

	prober := mediaprobe.New(cfg.FFprobePath)
	extractor := audioextract.New(cfg.FFmpegPath, cfg.ScratchDir)
	analyzer := vad.New(vad.NewEnergyDetector(), cfg.VADCacheDir)

	var oracle vision.Oracle = vision.DisabledOracle{}
	if cfg.VisionOracleURL != "" {
		oracle = vision.NewHTTPOracle(cfg.VisionOracleURL, cfg.VisionOracleTimeout)
	}
	localizer := vision.New(oracle, vision.NewFFmpegFrameSource(cfg.FFmpegPath))
	renderer := render.New(cfg.FFmpegPath)

	srv := &server{
		cfg:      cfg,
		pipe:     pipeline.New(cfg, prober, extractor, analyzer, localizer, renderer),
		analyzer: analyzer,
		admit:    make(chan struct{}, renderConcurrency(cfg)),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /export", srv.handleExport)
	mux.HandleFunc("POST /export/zip", srv.handleExportZip)
	mux.HandleFunc("POST /cache/clear", srv.handleCacheClear)
	mux.HandleFunc("GET /files/serve", srv.handleServeFile)

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Printf("PORT:%d\n", port)
	slog.Info("clipsmith server listening", "port", port, "ffmpeg", cfg.FFmpegPath)

	if err := http.Serve(listener, corsMiddleware(mux)); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func renderConcurrency(cfg config.Config) int {
	if cfg.RenderConcurrency > 0 {
		return cfg.RenderConcurrency
	}
	return runtime.NumCPU()
}

// exportRequest is the wire shape of ClipRequest (spec §3/§6).
type exportRequest struct {
	SourceID        string           `json:"source_id"`
	ClipStart       float64          `json:"clip_start"`
	ClipEnd         float64          `json:"clip_end"`
	TargetFormat    string           `json:"target_format"`
	Preset          string           `json:"preset"`
	IncludeCaptions bool             `json:"include_captions"`
	Transcript      []transcriptWord `json:"transcript,omitempty"`
	Adjustments     *adjustmentsWire `json:"adjustments,omitempty"`
}

type transcriptWord struct {
	Text     string  `json:"text"`
	SrcStart float64 `json:"src_start"`
	SrcEnd   float64 `json:"src_end"`
}

type adjustmentsWire struct {
	MaxKeptSilenceS *float64       `json:"max_kept_silence_s,omitempty"`
	Overrides       []overrideWire `json:"overrides,omitempty"`
}

type overrideWire struct {
	SrcStart float64 `json:"src_start"`
	KeepMS   float64 `json:"keep_ms"`
}

func (req exportRequest) toClipRequest() pipeline.ClipRequest {
	words := make([]captions.Word, len(req.Transcript))
	for i, w := range req.Transcript {
		words[i] = captions.Word{Text: w.Text, SrcStart: w.SrcStart, SrcEnd: w.SrcEnd}
	}

	var adj *planner.Adjustments
	if req.Adjustments != nil {
		overrides := make([]planner.Override, len(req.Adjustments.Overrides))
		for i, o := range req.Adjustments.Overrides {
			overrides[i] = planner.Override{SrcStart: o.SrcStart, KeepMS: o.KeepMS}
		}
		adj = &planner.Adjustments{MaxKeptSilenceS: req.Adjustments.MaxKeptSilenceS, Overrides: overrides}
	}

	return pipeline.ClipRequest{
		SourceID:        req.SourceID,
		ClipStart:       req.ClipStart,
		ClipEnd:         req.ClipEnd,
		TargetFormat:    req.TargetFormat,
		Preset:          req.Preset,
		IncludeCaptions: req.IncludeCaptions,
		Transcript:      words,
		Adjustments:     adj,
	}
}

// handleExport is the HTTP surface over export_clip (spec §6), gated by the
// admission semaphore the spec requires the caller (not the pipeline) own.
func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case s.admit <- struct{}{}:
		defer func() { <-s.admit }()
	case <-r.Context().Done():
		return
	}

	result, err := s.pipe.ExportClip(r.Context(), req.toClipRequest())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		slog.Error("export_clip failed", "source_id", req.SourceID, "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(result)
}

// handleCacheClear invalidates the process-wide VAD cache for one source,
// ported from the teacher's handleCacheClear (api_extra.go), narrowed from
// a blanket directory wipe to a single-source invalidation since the VAD
// cache is keyed by source_id/preset rather than being the only cache kind.
func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string `json:"source_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.analyzer.Clear(req.SourceID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// handleExportZip packages an exported clip (and its caption file, if any)
// into a ZIP, directly adapted from the teacher's handleExportZip
// (api_extra.go addFileToZip loop) but bundling a clip+captions pair
// instead of an mp3+lrc pair.
func (s *server) handleExportZip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClipPath     string `json:"clip_path"`
		CaptionsPath string `json:"captions_path,omitempty"`
		ClipName     string `json:"clip_name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClipPath == "" {
		http.Error(w, "clip_path required", http.StatusBadRequest)
		return
	}
	if !s.isAllowedPath(req.ClipPath) || (req.CaptionsPath != "" && !s.isAllowedPath(req.CaptionsPath)) {
		http.Error(w, "forbidden path", http.StatusForbidden)
		return
	}

	baseName := req.ClipName
	if baseName == "" {
		baseName = "clip"
	}
	safeName := filepath.Base(baseName)
	if ext := filepath.Ext(safeName); ext != "" {
		safeName = safeName[:len(safeName)-len(ext)]
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeName+`.zip"`)

	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := addFileToZip(zw, req.ClipPath, safeName+filepath.Ext(req.ClipPath)); err != nil {
		slog.Error("zip clip failed", "error", err)
		http.Error(w, "failed to zip clip", http.StatusInternalServerError)
		return
	}
	if req.CaptionsPath != "" {
		if err := addFileToZip(zw, req.CaptionsPath, safeName+".ass"); err != nil {
			slog.Error("zip captions failed", "error", err)
			http.Error(w, "failed to zip captions", http.StatusInternalServerError)
			return
		}
	}
}

// addFileToZip streams path into zw under zipFilePath, ported from the
// teacher's api_extra.go helper of the same name.
func addFileToZip(zw *zip.Writer, path, zipFilePath string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = zipFilePath
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, f)
	return err
}

// handleServeFile streams a local file for download, ported verbatim in
// spirit from the teacher's handleServeFile (api_extra.go), reusing its
// filepath.Rel-based containment check.
func (s *server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	if !s.isAllowedPath(path) {
		http.Error(w, "forbidden path", http.StatusForbidden)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "file not found: "+err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// isAllowedPath mirrors the teacher's isChildPath security check: only
// paths inside the server's own output/cache/scratch tree are servable.
func (s *server) isAllowedPath(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absData, err := filepath.Abs(s.cfg.DataDir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absData, absPath)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
