package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/markod0925/GuitarHelio/internal/basicpitch"
)

const maxUploadBytes = 200 << 20

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTranscribe accepts a multipart upload with two raw PCM parts,
// "notes" (22050 Hz f32le) and "tempo" (11025 Hz f32le), plus optional
// preset override fields, and starts an async job.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "invalid multipart form"})
		return
	}

	preset := basicpitch.DefaultPreset()
	if v := r.FormValue("note_sensitivity"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			preset.NoteSensitivity = parsed
		}
	}
	if v := r.FormValue("split_sensitivity"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			preset.SplitSensitivity = parsed
		}
	}
	if v := r.FormValue("melodia_trick"); v != "" {
		preset.MelodiaTrick = v == "1" || v == "true"
	}
	if err := preset.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: err.Error()})
		return
	}

	interpolate := r.FormValue("interpolate") != "false"
	localTempo := r.FormValue("local_tempo") != "false"
	wantMIDI := r.FormValue("midi") == "true" || r.FormValue("midi") == "1"

	job, err := s.jobs.Create()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Error: err.Error()})
		return
	}

	if err := saveUpload(r, "notes", job.Workspace.NotesPCM()); err != nil {
		job.Workspace.Cleanup()
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: err.Error()})
		return
	}
	if err := saveUpload(r, "tempo", job.Workspace.TempoPCM()); err != nil {
		job.Workspace.Cleanup()
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Error: err.Error()})
		return
	}

	go s.jobs.Process(job, preset, interpolate, localTempo, wantMIDI)

	writeJSON(w, http.StatusAccepted, statusResponse{ID: job.ID, Status: string(StatusPending)})
}

func saveUpload(r *http.Request, field, destination string) error {
	file, _, err := r.FormFile(field)
	if err != nil {
		return err
	}
	defer file.Close()

	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, file)
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Error: "unknown job"})
		return
	}

	status, errMsg := job.snapshot()
	writeJSON(w, http.StatusOK, statusResponse{ID: job.ID, Status: string(status), Error: errMsg})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Error: "unknown job"})
		return
	}

	status, errMsg := job.snapshot()
	if status != StatusComplete {
		writeJSON(w, http.StatusConflict, statusResponse{ID: job.ID, Status: string(status), Error: errMsg})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(job.Document)
}

func (s *Server) handleDownloadMIDI(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Error: "unknown job"})
		return
	}

	job.mu.Lock()
	path := job.MIDIPath
	job.mu.Unlock()

	if path == "" {
		writeJSON(w, http.StatusNotFound, statusResponse{ID: job.ID, Status: "error", Error: "no MIDI output for this job"})
		return
	}

	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="transcription.mid"`)
	http.ServeFile(w, r, path)
}
