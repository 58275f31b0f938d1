package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/command"
	"remindbot/internal/domain"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/timeexpr"
)

// Reminders is the reminder service as seen by the HTTP layer.
type Reminders interface {
	command.Reminders
	Reschedule(ctx context.Context, id int64) error
}

type Jobs interface {
	Jobs() []scheduler.Job
}

type Server struct {
	r         *chi.Mux
	reminders Reminders
	commands  *command.Orchestrator
	jobs      Jobs
}

// NewServer wires the routes. gatherer may be nil, in which case /metrics
// serves the default registry.
func NewServer(reminders Reminders, commands *command.Orchestrator, jobs Jobs, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, reminders: reminders, commands: commands, jobs: jobs}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/jobs", s.listJobs)

	r.Post("/add_reminder", s.addReminder)
	r.Post("/remove_reminder", s.removeReminder)
	r.Post("/list_reminders", s.listReminders)
	r.Post("/repeat_reminder", s.repeatReminder)
	r.Post("/multi_remind", s.multiRemind)
	r.Post("/reschedule_reminder", s.rescheduleReminder)
	r.Post("/command", s.command)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Instants travel as unix seconds, fractional part allowed.
func fromUnix(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func toUnix(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

type addReq struct {
	Owner         string  `json:"zulip_user_email"`
	Title         string  `json:"title"`
	Created       float64 `json:"created"`
	Deadline      float64 `json:"deadline"`
	Stream        string  `json:"stream,omitempty"`
	Topic         string  `json:"topic,omitempty"`
	IntervalValue int     `json:"interval_value,omitempty"`
	IntervalUnit  string  `json:"interval_unit,omitempty"`
}

type idReq struct {
	ReminderID int64 `json:"reminder_id"`
}

type ownerReq struct {
	Owner string `json:"zulip_user_email"`
}

type repeatReq struct {
	ReminderID    int64  `json:"reminder_id"`
	IntervalValue int    `json:"interval_value"`
	IntervalUnit  string `json:"interval_unit"`
}

type multiRemindReq struct {
	ReminderID int64    `json:"reminder_id"`
	Recipients []string `json:"recipients"`
}

type commandReq struct {
	Owner   string `json:"zulip_user_email"`
	Content string `json:"content"`
}

type reminderView struct {
	ID         int64    `json:"reminder_id"`
	Title      string   `json:"title"`
	Deadline   float64  `json:"deadline"`
	Stream     string   `json:"stream,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	Cadence    string   `json:"cadence_label,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Active     bool     `json:"active"`
}

type jobView struct {
	Key        string  `json:"key"`
	ReminderID int64   `json:"reminder_id"`
	Mode       string  `json:"mode"`
	FireAt     float64 `json:"fire_at,omitempty"`
	PeriodSec  float64 `json:"period_seconds,omitempty"`
	Next       float64 `json:"next,omitempty"`
}

func interval(value int, unit string) (*domain.Interval, error) {
	if value == 0 && unit == "" {
		return nil, nil
	}
	u, ok := domain.ParseUnit(unit)
	if !ok {
		return nil, &domain.ValidationError{Field: "interval_unit", Reason: "unknown time unit " + unit}
	}
	iv := &domain.Interval{Value: value, Unit: u}
	return iv, iv.Validate()
}

func (s *Server) addReminder(w http.ResponseWriter, r *http.Request) {
	var req addReq
	if !decode(w, r, &req) {
		return
	}
	every, err := interval(req.IntervalValue, req.IntervalUnit)
	if err != nil {
		writeErr(w, err, 0)
		return
	}
	add := reminder.AddRequest{
		Owner:      req.Owner,
		Title:      req.Title,
		CreatedAt:  fromUnix(req.Created),
		Deadline:   fromUnix(req.Deadline),
		Recurrence: every,
	}
	if add.CreatedAt.IsZero() {
		add.CreatedAt = time.Now()
	}
	if req.Stream != "" || req.Topic != "" {
		add.Destination = &domain.Destination{Stream: req.Stream, Topic: req.Topic}
	}
	id, err := s.reminders.AddReminder(r.Context(), add)
	if err != nil {
		writeErr(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reminder_id": id})
}

func (s *Server) removeReminder(w http.ResponseWriter, r *http.Request) {
	var req idReq
	if !decode(w, r, &req) {
		return
	}
	if err := s.reminders.RemoveReminder(r.Context(), req.ReminderID); err != nil {
		writeErr(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	var req ownerReq
	if !decode(w, r, &req) {
		return
	}
	list, err := s.reminders.ListReminders(r.Context(), req.Owner)
	if err != nil {
		writeErr(w, err, 0)
		return
	}
	views := make([]reminderView, 0, len(list))
	for _, rem := range list {
		v := reminderView{
			ID:         rem.ID,
			Title:      rem.Title,
			Deadline:   toUnix(rem.Deadline),
			Cadence:    rem.Cadence(),
			Recipients: rem.Recipients,
			Active:     rem.Active,
		}
		if d := rem.Destination; d != nil {
			v.Stream, v.Topic = d.Stream, d.Topic
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reminders": views})
}

func (s *Server) repeatReminder(w http.ResponseWriter, r *http.Request) {
	var req repeatReq
	if !decode(w, r, &req) {
		return
	}
	u, ok := domain.ParseUnit(req.IntervalUnit)
	if !ok {
		writeErr(w, &domain.ValidationError{Field: "interval_unit", Reason: "unknown time unit " + req.IntervalUnit}, 0)
		return
	}
	if err := s.reminders.RepeatReminder(r.Context(), req.ReminderID, domain.Interval{Value: req.IntervalValue, Unit: u}); err != nil {
		writeErr(w, err, req.ReminderID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) multiRemind(w http.ResponseWriter, r *http.Request) {
	var req multiRemindReq
	if !decode(w, r, &req) {
		return
	}
	var names []string
	for _, raw := range req.Recipients {
		names = append(names, timeexpr.ParseRecipients(raw)...)
	}
	recipients, err := s.reminders.MultiRemind(r.Context(), req.ReminderID, names)
	if err != nil {
		writeErr(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recipients": recipients})
}

func (s *Server) rescheduleReminder(w http.ResponseWriter, r *http.Request) {
	var req idReq
	if !decode(w, r, &req) {
		return
	}
	if err := s.reminders.Reschedule(r.Context(), req.ReminderID); err != nil {
		writeErr(w, err, req.ReminderID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// command runs a chat command. Failures of the command itself are part of the
// reply, so the status is 200 whenever the body could be read.
func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	var req commandReq
	if !decode(w, r, &req) {
		return
	}
	if req.Owner == "" {
		writeErr(w, &domain.ValidationError{Field: "zulip_user_email", Reason: "owner is required"}, 0)
		return
	}
	reply := s.commands.Handle(r.Context(), command.Message{Owner: req.Owner, Content: req.Content})
	body := map[string]any{"success": reply.Err == nil, "reply": reply.Text}
	if reply.Err == nil {
		body["intent"] = reply.Intent.String()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.Jobs()
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{
			Key:        j.Key.String(),
			ReminderID: j.Key.ReminderID,
			Mode:       string(j.Key.Mode),
			PeriodSec:  j.Period.Seconds(),
		}
		if !j.FireAt.IsZero() {
			v.FireAt = toUnix(j.FireAt)
		}
		if !j.Next.IsZero() {
			v.Next = toUnix(j.Next)
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "malformed body: " + err.Error()})
		return false
	}
	return true
}

// writeErr maps the error taxonomy onto status codes. A scheduler failure
// after the record was stored still reports the reminder id.
func writeErr(w http.ResponseWriter, err error, id int64) {
	var (
		ve *domain.ValidationError
		pe *timeexpr.ParseError
		se *domain.SchedulerError
	)
	body := map[string]any{"success": false, "error": err.Error()}
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve), errors.As(err, &pe):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	case errors.As(err, &se):
		if id != 0 {
			body["reminder_id"] = id
		}
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
