// Package interview drives one interview from bootstrap to completion: it
// voices each question, records the answer on camera and microphone, streams
// the audio for transcription and submits the result to the backend.
package interview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/backend"
	"github.com/Soln1shko/AI-HR/internal/capture"
	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/providers/stt"
	"github.com/Soln1shko/AI-HR/internal/providers/transcription"
	"github.com/Soln1shko/AI-HR/internal/providers/tts"
	"github.com/Soln1shko/AI-HR/internal/services"
	"github.com/Soln1shko/AI-HR/internal/storage"
	"github.com/Soln1shko/AI-HR/internal/timer"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// DefaultGreeting is the first question of every interview. The backend
// produces the questions that follow.
const DefaultGreeting = "Здравствуйте! Спасибо за интерес к нашей компании. Я ваш AI-ассистент по подбору персонала. " +
	"Сегодня мы проведём структурированное интервью, чтобы лучше узнать ваш опыт, навыки и мотивацию. " +
	"Пожалуйста, начните с краткого рассказа о себе. Удачи!"

const (
	NoticeSlowProcessing = "processing takes longer than usual, wait or record the answer again"
	fallbackTimeout      = time.Minute
)

// Transcriber is the streaming speech-to-text channel.
type Transcriber interface {
	Subscribe(h transcription.Handlers) func()
	Connect(ctx context.Context) error
	SendAudioChunk(chunk []byte) error
	EndTranscription() error
}

// Synthesizer turns question text into playable audio.
type Synthesizer interface {
	Speak(ctx context.Context, text, voice string, sampleRate int) ([]byte, error)
}

type Settings struct {
	Voice              string
	SampleRate         int
	DefaultOptimalTime int // seconds
	Language           string
	Greeting           string
	ErrorClearAfter    time.Duration
	ProcessingNotice   time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Voice:              tts.DefaultVoice,
		SampleRate:         tts.DefaultSampleRate,
		DefaultOptimalTime: 90,
		Language:           stt.DefaultLanguage,
		Greeting:           DefaultGreeting,
		ErrorClearAfter:    3 * time.Second,
		ProcessingNotice:   60 * time.Second,
	}
}

// Deps are the collaborators of an Orchestrator. Videos, Player, Journal,
// Events and Fallback are optional.
type Deps struct {
	API         backend.API
	Videos      storage.VideoUploader
	Transcriber Transcriber
	Synthesizer Synthesizer
	Player      tts.Player
	Camera      *capture.Controller
	Microphone  *capture.Controller
	Timer       *timer.Timer
	Journal     services.JournalService
	Events      Publisher
	Fallback    stt.Provider
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// Snapshot is the externally visible interview state.
type Snapshot struct {
	Phase            Phase                 `json:"phase"`
	InterviewID      string                `json:"interview_id,omitempty"`
	MLInterviewID    string                `json:"mlinterview_id,omitempty"`
	VacancyID        string                `json:"vacancy_id,omitempty"`
	Question         string                `json:"question,omitempty"`
	Turn             int                   `json:"turn"`
	OptimalTime      int                   `json:"optimal_time"`
	TimeLeft         int                   `json:"time_left"`
	Preparing        bool                  `json:"is_preparing"`
	Speaking         bool                  `json:"is_speaking"`
	Transcript       string                `json:"transcript,omitempty"`
	Analysis         *models.VoiceAnalysis `json:"analysis,omitempty"`
	HasVideo         bool                  `json:"has_video"`
	CameraAvailable  bool                  `json:"camera_available"`
	CameraPrompt     bool                  `json:"camera_prompt"`
	MicrophonePrompt bool                  `json:"microphone_prompt"`
	CanRecord        bool                  `json:"can_record"`
	Error            string                `json:"error,omitempty"`
	Notice           string                `json:"notice,omitempty"`
}

type pending struct {
	typ         EventType
	msg         string
	phase       Phase
	interviewID string
}

// Orchestrator is safe for concurrent use. Collaborators are never called
// while the state lock is held.
type Orchestrator struct {
	api      backend.API
	videos   storage.VideoUploader
	voice    Transcriber
	speech   Synthesizer
	player   tts.Player
	camera   *capture.Controller
	mic      *capture.Controller
	timer    *timer.Timer
	journal  services.JournalService
	events   Publisher
	fallback stt.Provider
	settings Settings
	now      func() time.Time
	log      *logrus.Entry

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu     sync.Mutex
	outbox []pending

	// gen changes on every Start and Exit; async work carrying an older
	// value is discarded.
	gen       uint64
	phase     Phase
	errReturn Phase
	errSeq    uint64
	errMsg    string
	notice    string

	vacancyID     string
	interviewID   string
	mlInterviewID string
	question      string
	turnIndex     int
	optimalTime   int

	preparing bool
	speaking  bool

	cameraAvailable bool
	cameraPrompt    bool
	micPrompt       bool

	exchangeID     string
	seq            int64
	awaitingResult bool
	skipResults    int
	skipAnalysis   bool
	submitting     bool
	discarding     bool

	transcript string
	analysis   *models.VoiceAnalysis
	videoBlob  *capture.Blob
	videoID    string
	micBlob    *capture.Blob

	playCancel  context.CancelFunc
	errTimer    *time.Timer
	noticeTimer *time.Timer
}

func New(d Deps, s Settings) *Orchestrator {
	def := DefaultSettings()
	if s.Voice == "" {
		s.Voice = def.Voice
	}
	if s.SampleRate <= 0 {
		s.SampleRate = def.SampleRate
	}
	if s.DefaultOptimalTime <= 0 {
		s.DefaultOptimalTime = def.DefaultOptimalTime
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	if s.Greeting == "" {
		s.Greeting = def.Greeting
	}
	if s.ErrorClearAfter <= 0 {
		s.ErrorClearAfter = def.ErrorClearAfter
	}
	if s.ProcessingNotice <= 0 {
		s.ProcessingNotice = def.ProcessingNotice
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		api:      d.API,
		videos:   d.Videos,
		voice:    d.Transcriber,
		speech:   d.Synthesizer,
		player:   d.Player,
		camera:   d.Camera,
		mic:      d.Microphone,
		timer:    d.Timer,
		journal:  d.Journal,
		events:   d.Events,
		fallback: d.Fallback,
		settings: s,
		now:      d.Now,
		log:      logger.Component(d.Log, "interview"),
		ctx:      ctx,
		cancel:   cancel,
		phase:    PhaseIdle,
	}
	if o.player == nil {
		o.player = tts.NopPlayer{}
	}
	if o.journal == nil {
		o.journal = services.NopJournal{}
	}
	if o.events == nil {
		o.events = MultiPublisher{}
	}
	if o.now == nil {
		o.now = time.Now
	}

	o.camera.SetCallbacks(capture.Callbacks{
		OnAvailable: o.onCameraAvailable,
		OnError:     o.onCameraError,
		OnBlob:      o.onVideoBlob,
	})
	o.mic.SetCallbacks(capture.Callbacks{
		OnChunk: o.onMicChunk,
		OnError: o.onMicError,
	})
	o.timer.OnTick(o.onTick)
	o.timer.OnExpire(o.onTimeExpired)
	o.unsubscribe = o.voice.Subscribe(transcription.Handlers{
		OnTranscription: o.onTranscription,
		OnAnalysis:      o.onAnalysis,
		OnError:         o.onTranscriptionError,
	})
	return o
}

// Close releases subscriptions and cancels background work. It does not
// end the interview on the backend; use Exit for that.
func (o *Orchestrator) Close() {
	o.cancel()
	o.unsubscribe()

	o.mu.Lock()
	o.stopTimersLocked()
	o.mu.Unlock()

	o.camera.StopCamera()
	o.mic.StopCamera()
}

func (o *Orchestrator) Snapshot() Snapshot {
	remaining := o.timer.Remaining()

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked(remaining)
}

func (o *Orchestrator) snapshotLocked(remaining int) Snapshot {
	return Snapshot{
		Phase:            o.phase,
		InterviewID:      o.interviewID,
		MLInterviewID:    o.mlInterviewID,
		VacancyID:        o.vacancyID,
		Question:         o.question,
		Turn:             o.turnIndex,
		OptimalTime:      o.optimalTime,
		TimeLeft:         remaining,
		Preparing:        o.preparing,
		Speaking:         o.speaking,
		Transcript:       o.transcript,
		Analysis:         o.analysis,
		HasVideo:         o.videoBlob != nil && o.videoBlob.Size() > 0,
		CameraAvailable:  o.cameraAvailable,
		CameraPrompt:     o.cameraPrompt,
		MicrophonePrompt: o.micPrompt,
		CanRecord:        o.phase == PhaseAwaitingRecording && !o.preparing && !o.speaking && remaining > 0,
		Error:            o.errMsg,
		Notice:           o.notice,
	}
}

// Start bootstraps an interview for vacancyID and voices the greeting in
// the background.
func (o *Orchestrator) Start(ctx context.Context, vacancyID string) error {
	const op = "Orchestrator.Start"

	vacancyID = strings.TrimSpace(vacancyID)
	if vacancyID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "vacancy_id is required", nil)
	}

	o.mu.Lock()
	startable := o.phase == PhaseIdle || o.phase == PhaseExited ||
		(o.phase == PhaseError && o.errReturn == PhaseIdle)
	if !startable {
		o.unlock()
		return ErrInvalidTransition
	}
	if o.phase == PhaseError {
		o.phase = PhaseIdle
	}
	o.resetLocked()
	o.gen++
	gen := o.gen
	o.vacancyID = vacancyID
	o.setPhaseLocked(PhaseStarting)
	o.unlock()

	if err := o.voice.Connect(ctx); err != nil {
		o.log.WithError(err).Warn("transcription channel unavailable at start")
	}
	o.camera.InitializeCamera(ctx)

	resp, err := o.api.StartInterview(ctx, vacancyID)

	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		if err == nil && resp.InterviewID != "" {
			o.discardInterview(resp.InterviewID)
		}
		return ErrExited
	}
	if err != nil {
		o.failLocked(gen, "failed to start the interview", PhaseIdle)
		o.unlock()
		o.log.WithError(err).WithField("vacancy_id", vacancyID).Error("interview bootstrap failed")
		return err
	}
	o.interviewID = resp.InterviewID
	o.question = o.settings.Greeting
	o.optimalTime = o.settings.DefaultOptimalTime
	o.setPhaseLocked(PhaseActive)
	o.emitLocked(EventQuestion, "")
	o.unlock()

	o.journal.SessionStarted(o.ctx, resp.InterviewID, vacancyID)
	o.log.WithFields(logrus.Fields{
		"interview_id": resp.InterviewID,
		"vacancy_id":   vacancyID,
	}).Info("interview started")

	st, restored, err := o.timer.Restore(o.ctx)
	if err != nil {
		o.log.WithError(err).Warn("timer restore failed")
	}
	if restored && o.timer.QuestionSpoken() {
		o.resume(gen, st.OptimalTime)
		return nil
	}

	go o.playQuestion(gen, o.settings.Greeting, o.settings.DefaultOptimalTime)
	return nil
}

// resume continues a question whose countdown survived a restart.
func (o *Orchestrator) resume(gen uint64, optimal int) {
	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return
	}
	o.optimalTime = optimal
	o.setPhaseLocked(PhaseAwaitingRecording)
	o.unlock()

	o.log.WithField("optimal_time", optimal).Info("question already voiced, countdown restored")
	o.startVideo(gen)
}

func (o *Orchestrator) playQuestion(gen uint64, text string, allotted int) {
	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.playCancel = cancel
	o.preparing = true
	o.emitLocked(EventSpeech, "")
	o.unlock()
	defer cancel()

	audio, err := o.speech.Speak(ctx, text, o.settings.Voice, o.settings.SampleRate)
	if err != nil {
		o.log.WithError(err).Warn("speech synthesis failed, question shown as text only")
	}

	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return
	}
	o.preparing = false
	o.speaking = err == nil
	if err != nil {
		o.emitLocked(EventNotice, "the question could not be voiced")
	}
	o.emitLocked(EventSpeech, "")
	o.unlock()

	if err == nil {
		if perr := o.player.Play(ctx, audio); perr != nil {
			o.log.WithError(perr).Warn("playback failed")
		}
		o.mu.Lock()
		if gen != o.gen {
			o.unlock()
			return
		}
		o.speaking = false
		o.emitLocked(EventSpeech, "")
		o.unlock()
	}

	o.questionSpoken(gen, allotted)
}

// questionSpoken starts the answer window: video recording begins and a
// fresh countdown replaces the previous one.
func (o *Orchestrator) questionSpoken(gen uint64, allotted int) {
	if !o.current(gen) {
		return
	}
	o.startVideo(gen)

	if err := o.timer.Stop(o.ctx); err != nil {
		o.log.WithError(err).Warn("failed to clear previous countdown")
	}
	if err := o.timer.Start(o.ctx, allotted); err != nil {
		o.log.WithError(err).Error("failed to start countdown")
	}

	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		_ = o.timer.Stop(o.ctx)
		return
	}
	o.optimalTime = allotted
	o.setPhaseLocked(PhaseAwaitingRecording)
	o.unlock()
}

func (o *Orchestrator) startVideo(gen uint64) {
	if !o.camera.StartRecording(o.ctx) {
		o.log.Warn("video recording did not start")
		return
	}
	if !o.current(gen) {
		o.camera.StopCamera()
	}
}

// EnableCamera retries camera access after a denied prompt. While an answer
// is awaited the video recording starts right away.
func (o *Orchestrator) EnableCamera(ctx context.Context) bool {
	if !o.camera.InitializeCamera(ctx) {
		return false
	}

	o.mu.Lock()
	gen := o.gen
	awaiting := o.phase == PhaseAwaitingRecording
	o.cameraPrompt = false
	o.emitLocked(EventDevice, "")
	o.unlock()

	if awaiting {
		o.startVideo(gen)
	}
	return true
}

// StartRecording begins an answer. It is refused while the question is
// being voiced, after the countdown ran out and without a camera.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	remaining := o.timer.Remaining()

	o.mu.Lock()
	if o.phase != PhaseAwaitingRecording {
		o.unlock()
		return ErrInvalidTransition
	}
	if o.preparing || o.speaking {
		o.unlock()
		return ErrSpeaking
	}
	if remaining <= 0 {
		o.unlock()
		return ErrTimeExpired
	}
	if !o.cameraAvailable {
		o.cameraPrompt = true
		o.emitLocked(EventDevice, "camera access is required to record an answer")
		o.unlock()
		return ErrCameraUnavailable
	}
	gen := o.gen
	o.exchangeID = uuid.NewString()
	o.seq = 0
	o.transcript = ""
	o.analysis = nil
	o.micBlob = nil
	o.notice = ""
	o.micPrompt = false
	o.setPhaseLocked(PhaseRecording)
	ex := o.exchangeID
	o.unlock()

	if !o.mic.StartRecording(o.ctx) {
		o.mu.Lock()
		if gen == o.gen && o.phase == PhaseRecording {
			o.micPrompt = true
			o.setPhaseLocked(PhaseAwaitingRecording)
		}
		o.unlock()
		return ErrMicrophoneUnavailable
	}

	o.log.WithField("exchange_id", ex).Info("answer recording started")
	return nil
}

// StopRecording finishes the answer and asks for its transcript. It is a
// no-op when nothing is being recorded.
func (o *Orchestrator) StopRecording(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseRecording || o.discarding {
		o.unlock()
		return nil
	}
	gen := o.gen
	ex := o.exchangeID
	o.setPhaseLocked(PhaseUploading)
	o.unlock()

	blob, ok := o.mic.StopRecording(ctx)

	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return nil
	}
	if ex != o.exchangeID {
		// discarded while the microphone was flushing
		o.unlock()
		o.discardExchange(gen)
		return nil
	}
	if ok {
		b := blob
		o.micBlob = &b
	}
	o.awaitingResult = true
	o.armNoticeLocked(gen, ex)
	o.unlock()

	if err := o.voice.EndTranscription(); err != nil {
		o.log.WithError(err).Warn("could not request transcription")
		o.mu.Lock()
		switch {
		case gen != o.gen:
		case ex == o.exchangeID:
			o.awaitingResult = false
		case o.skipResults > 0:
			// Rerecord turned the reservation into a skip
			o.skipResults--
		}
		o.unlock()
		o.resolveFailure(gen, ex, transcription.MsgUnavailable, true)
		return nil
	}

	o.log.WithFields(logrus.Fields{
		"exchange_id": ex,
		"audio_bytes": blob.Size(),
	}).Info("answer recorded, waiting for transcript")
	return nil
}

// Rerecord discards the current answer. The countdown keeps running.
func (o *Orchestrator) Rerecord(ctx context.Context) error {
	remaining := o.timer.Remaining()

	o.mu.Lock()
	switch o.phase {
	case PhaseRecording, PhaseUploading, PhaseRecorded:
	case PhaseError:
		if o.errReturn == PhaseIdle {
			o.unlock()
			return ErrInvalidTransition
		}
	default:
		o.unlock()
		return ErrInvalidTransition
	}
	if o.submitting || o.discarding {
		o.unlock()
		return ErrInvalidTransition
	}
	if remaining <= 0 {
		o.unlock()
		return ErrTimeExpired
	}
	gen := o.gen
	wasRecording := o.phase == PhaseRecording
	if o.awaitingResult {
		o.skipResults++
		o.awaitingResult = false
	}
	o.exchangeID = ""
	o.transcript = ""
	o.analysis = nil
	o.micBlob = nil
	o.videoBlob = nil
	o.videoID = ""
	o.notice = ""
	o.errMsg = ""
	o.errSeq++
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
		o.noticeTimer = nil
	}
	if o.phase == PhaseError {
		o.phase = o.errReturn
		o.emitLocked(EventPhase, "")
	}
	if wasRecording {
		// the phase stays Recording until the microphone has flushed
		o.discarding = true
	} else {
		o.setPhaseLocked(PhaseAwaitingRecording)
	}
	o.unlock()

	if wasRecording {
		o.mic.StopRecording(ctx)
		o.discardExchange(gen)

		o.mu.Lock()
		o.discarding = false
		if gen == o.gen && o.phase == PhaseRecording {
			o.setPhaseLocked(PhaseAwaitingRecording)
		}
		o.unlock()
	}

	o.camera.StopRecording(ctx)

	o.mu.Lock()
	o.videoBlob = nil
	camera := o.cameraAvailable && gen == o.gen
	o.unlock()

	if camera {
		o.startVideo(gen)
	}
	o.log.Info("answer discarded for re-recording")
	return nil
}

// discardExchange closes the server side buffer of discarded audio. The skip
// is reserved before end goes out and released if it cannot be sent.
func (o *Orchestrator) discardExchange(gen uint64) {
	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return
	}
	o.skipResults++
	o.unlock()

	if err := o.voice.EndTranscription(); err != nil {
		o.log.WithError(err).Debug("end for discarded audio not sent")
		o.mu.Lock()
		if gen == o.gen && o.skipResults > 0 {
			o.skipResults--
		}
		o.unlock()
	}
}

// Submit uploads the answer video, saves the answer and moves on to the
// next question or completes the interview.
func (o *Orchestrator) Submit(ctx context.Context) error {
	const op = "Orchestrator.Submit"

	o.mu.Lock()
	if o.phase != PhaseRecorded || o.submitting {
		noTranscript := o.transcript == "" && !o.submitting && (o.phase == PhaseAwaitingRecording ||
			o.phase == PhaseRecording || o.phase == PhaseUploading)
		o.unlock()
		if noTranscript {
			return ErrNoTranscript
		}
		return ErrInvalidTransition
	}
	if o.transcript == "" {
		o.unlock()
		return ErrNoTranscript
	}
	gen := o.gen
	turn := models.InterviewTurn{
		Index:         o.turnIndex,
		Question:      o.question,
		InterviewID:   o.interviewID,
		MLInterviewID: o.mlInterviewID,
		VideoID:       o.videoID,
		Analysis:      o.analysis,
		AnswerText:    o.transcript,
		OptimalTime:   o.optimalTime,
	}
	o.submitting = true
	o.setPhaseLocked(PhaseUploading)
	o.unlock()

	o.camera.StopRecording(ctx)

	if turn.VideoID == "" && o.videos != nil {
		o.mu.Lock()
		blob := o.videoBlob
		o.unlock()
		if blob != nil && blob.Size() > 0 {
			id, err := o.videos.UploadVideo(ctx, storage.ObjectName(turn.InterviewID, o.now()), *blob)
			if err != nil {
				o.log.WithError(err).Warn("video upload failed, answer sent without video")
			} else {
				turn.VideoID = id
				o.mu.Lock()
				if gen == o.gen {
					o.videoID = id
				}
				o.unlock()
			}
		}
	}

	resp, err := o.api.SaveAnswer(ctx, backend.AnswerRequest{
		InterviewID:   turn.InterviewID,
		MLInterviewID: turn.MLInterviewID,
		Question:      turn.SubmittedQuestion(),
		AnswerText:    turn.AnswerText,
		Analysis:      turn.Analysis,
		VideoID:       turn.VideoID,
	})

	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return ErrExited
	}
	o.submitting = false
	if err != nil {
		o.failLocked(gen, "failed to send the answer", PhaseRecorded)
		o.unlock()
		o.log.WithError(err).WithField("interview_id", turn.InterviewID).Error("answer submission failed")
		return err
	}
	next := strings.TrimSpace(resp.NextQuestion())
	if !resp.Completed() && next == "" {
		o.failLocked(gen, "the server returned no next question", PhaseRecorded)
		o.unlock()
		return utils.E(utils.CodeUnavailable, op, "empty next question", nil)
	}
	o.unlock()

	if err := o.timer.Stop(o.ctx); err != nil {
		o.log.WithError(err).Warn("failed to clear countdown")
	}
	if resp.MLInterviewID != "" {
		turn.MLInterviewID = resp.MLInterviewID
	}
	o.journal.AnswerSubmitted(o.ctx, turn)

	o.mu.Lock()
	if gen != o.gen {
		o.unlock()
		return ErrExited
	}
	o.clearAnswerLocked()
	if resp.MLInterviewID != "" {
		o.mlInterviewID = resp.MLInterviewID
	}

	if resp.Completed() {
		o.setPhaseLocked(PhaseCompleted)
		o.unlock()

		o.camera.StopCamera()
		o.mic.StopCamera()
		o.journal.SessionEnded(o.ctx, turn.InterviewID, models.SessionCompleted)
		o.log.WithField("interview_id", turn.InterviewID).Info("interview completed")
		return nil
	}

	optimal := resp.OptimalSeconds(o.settings.DefaultOptimalTime)
	o.question = next
	o.turnIndex++
	o.optimalTime = optimal
	o.setPhaseLocked(PhaseActive)
	o.emitLocked(EventQuestion, "")
	o.unlock()

	o.log.WithFields(logrus.Fields{
		"interview_id": turn.InterviewID,
		"turn":         turn.Index + 1,
		"optimal_time": optimal,
	}).Info("answer accepted, next question")

	go o.playQuestion(gen, next, optimal)
	return nil
}

// Exit abandons the interview. Results of in-flight work are ignored and
// the interview is deleted on the backend unless it already completed.
func (o *Orchestrator) Exit(ctx context.Context) error {
	o.mu.Lock()
	if o.phase == PhaseExited {
		o.unlock()
		return nil
	}
	prev := o.phase
	iid := o.interviewID
	o.gen++
	if o.playCancel != nil {
		o.playCancel()
		o.playCancel = nil
	}
	o.stopTimersLocked()
	o.preparing = false
	o.speaking = false
	o.submitting = false
	o.setPhaseLocked(PhaseExited)
	o.unlock()

	o.camera.StopCamera()
	o.mic.StopCamera()
	if err := o.timer.Stop(ctx); err != nil {
		o.log.WithError(err).Warn("failed to clear countdown")
	}

	if iid != "" && prev != PhaseCompleted {
		if err := o.api.DeleteInterview(ctx, iid); err != nil {
			o.log.WithError(err).WithField("interview_id", iid).Warn("failed to delete interview")
		}
		o.journal.SessionEnded(o.ctx, iid, models.SessionExited)
	}
	o.log.WithField("interview_id", iid).Info("interview exited")
	return nil
}

func (o *Orchestrator) discardInterview(id string) {
	ctx, cancel := context.WithTimeout(o.ctx, 10*time.Second)
	defer cancel()
	if err := o.api.DeleteInterview(ctx, id); err != nil {
		o.log.WithError(err).WithField("interview_id", id).Warn("failed to delete abandoned interview")
	}
}

func (o *Orchestrator) onMicChunk(chunk []byte) {
	o.mu.Lock()
	if (o.phase != PhaseRecording && o.phase != PhaseUploading) || o.exchangeID == "" {
		o.unlock()
		return
	}
	iid, ex := o.interviewID, o.exchangeID
	o.seq++
	seq := o.seq
	o.unlock()

	if err := o.voice.SendAudioChunk(chunk); err != nil {
		o.log.WithError(err).WithField("seq", seq).Warn("audio chunk not sent")
	}
	o.journal.ChunkCaptured(o.ctx, iid, ex, seq, chunk)
}

func (o *Orchestrator) onMicError(msg string) {
	o.mu.Lock()
	o.micPrompt = true
	o.emitLocked(EventDevice, msg)
	o.unlock()
}

func (o *Orchestrator) onCameraAvailable(available bool) {
	o.mu.Lock()
	o.cameraAvailable = available
	if available {
		o.cameraPrompt = false
	}
	o.emitLocked(EventDevice, "")
	o.unlock()
}

func (o *Orchestrator) onCameraError(msg string) {
	o.log.WithField("reason", msg).Warn("camera error")
}

func (o *Orchestrator) onVideoBlob(b capture.Blob) {
	o.mu.Lock()
	if o.phase != PhaseExited {
		o.videoBlob = &b
	}
	o.unlock()
}

func (o *Orchestrator) onTranscription(text string) {
	o.mu.Lock()
	o.skipAnalysis = false
	if o.skipResults > 0 {
		o.skipResults--
		o.skipAnalysis = true
		o.unlock()
		o.log.Debug("result of a discarded answer dropped")
		return
	}
	o.awaitingResult = false
	gen, ex := o.gen, o.exchangeID
	o.unlock()

	o.acceptTranscript(gen, ex, text)
}

func (o *Orchestrator) acceptTranscript(gen uint64, ex, text string) {
	text = strings.TrimSpace(text)

	o.mu.Lock()
	if gen != o.gen || ex == "" || ex != o.exchangeID || o.submitting ||
		(o.phase != PhaseUploading && o.phase != PhaseRecorded) {
		o.unlock()
		o.log.WithField("exchange_id", ex).Debug("late transcript dropped")
		return
	}
	if text == "" {
		o.unlock()
		o.resolveFailure(gen, ex, "no speech was recognized, record the answer again", false)
		return
	}
	o.transcript = text
	o.notice = ""
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
		o.noticeTimer = nil
	}
	if o.phase == PhaseUploading {
		o.setPhaseLocked(PhaseRecorded)
	}
	o.emitLocked(EventTranscript, "")
	o.unlock()

	o.journal.ExchangeResolved(o.ctx, ex, services.ChunkTranscribed, text)
}

func (o *Orchestrator) onAnalysis(a *models.VoiceAnalysis) {
	o.mu.Lock()
	defer o.unlock()
	if o.skipAnalysis {
		o.skipAnalysis = false
		return
	}
	if o.submitting || (o.phase != PhaseRecorded && o.phase != PhaseUploading) {
		return
	}
	o.analysis = a.Normalized()
	o.emitLocked(EventAnalysis, "")
}

func (o *Orchestrator) onTranscriptionError(msg string) {
	if msg == transcription.MsgMalformed {
		o.log.Warn("malformed transcription message ignored")
		return
	}

	o.mu.Lock()
	o.skipAnalysis = false
	lost := msg == transcription.MsgLost || msg == transcription.MsgUnavailable
	if lost {
		o.skipResults = 0
	} else if o.skipResults > 0 {
		o.skipResults--
		o.unlock()
		return
	}
	o.awaitingResult = false
	gen, ex := o.gen, o.exchangeID
	o.unlock()

	o.log.WithField("reason", msg).Warn("transcription failed")
	o.resolveFailure(gen, ex, msg, true)
}

// resolveFailure ends an exchange without transcript. The recorded audio
// goes to the fallback recognizer first when one is configured.
func (o *Orchestrator) resolveFailure(gen uint64, ex, msg string, allowFallback bool) {
	o.mu.Lock()
	if gen != o.gen || ex == "" || ex != o.exchangeID || o.phase != PhaseUploading || o.submitting {
		o.unlock()
		return
	}
	if allowFallback && o.fallback != nil && o.micBlob != nil && o.micBlob.Size() > 0 {
		blob := *o.micBlob
		o.unlock()
		go o.fallbackTranscribe(gen, ex, blob)
		return
	}
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
		o.noticeTimer = nil
	}
	o.failLocked(gen, msg, PhaseAwaitingRecording)
	o.unlock()

	o.journal.ExchangeResolved(o.ctx, ex, services.ChunkFailed, "")
}

func (o *Orchestrator) fallbackTranscribe(gen uint64, ex string, blob capture.Blob) {
	ctx, cancel := context.WithTimeout(o.ctx, fallbackTimeout)
	defer cancel()

	text, confidence, err := o.fallback.Transcribe(ctx, blob.Data, blob.Format, o.settings.Language)
	if err != nil {
		o.log.WithError(err).Warn("fallback recognition failed")
		o.resolveFailure(gen, ex, "speech recognition failed", false)
		return
	}
	o.log.WithFields(logrus.Fields{
		"exchange_id": ex,
		"confidence":  confidence,
	}).Info("answer transcribed by fallback recognizer")
	o.acceptTranscript(gen, ex, text)
}

func (o *Orchestrator) onTick(remaining int) {
	o.mu.Lock()
	o.emitLocked(EventTick, "")
	o.unlock()
}

// onTimeExpired force-stops a running answer recording.
func (o *Orchestrator) onTimeExpired() {
	o.mu.Lock()
	recording := o.phase == PhaseRecording
	o.emitLocked(EventTimeExpired, "")
	o.unlock()

	o.log.WithField("recording", recording).Info("answer time is over")
	if recording {
		_ = o.StopRecording(o.ctx)
	}
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.gen
}

func (o *Orchestrator) setPhaseLocked(to Phase) bool {
	if o.phase == to {
		return true
	}
	if !CanTransition(o.phase, to) {
		o.log.WithFields(logrus.Fields{"from": o.phase, "to": to}).Warn("illegal phase transition ignored")
		return false
	}
	o.phase = to
	o.emitLocked(EventPhase, "")
	return true
}

// failLocked enters the error phase; it clears itself after
// ErrorClearAfter and returns to back.
func (o *Orchestrator) failLocked(gen uint64, msg string, back Phase) {
	o.errReturn = back
	if !o.setPhaseLocked(PhaseError) {
		return
	}
	o.errMsg = msg
	o.errSeq++
	seq := o.errSeq
	o.emitLocked(EventError, msg)

	if o.errTimer != nil {
		o.errTimer.Stop()
	}
	o.errTimer = time.AfterFunc(o.settings.ErrorClearAfter, func() { o.clearError(gen, seq) })
}

func (o *Orchestrator) clearError(gen, seq uint64) {
	o.mu.Lock()
	defer o.unlock()
	if gen != o.gen || seq != o.errSeq || o.phase != PhaseError {
		return
	}
	o.errMsg = ""
	o.setPhaseLocked(o.errReturn)
}

func (o *Orchestrator) armNoticeLocked(gen uint64, ex string) {
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
	}
	o.noticeTimer = time.AfterFunc(o.settings.ProcessingNotice, func() {
		o.mu.Lock()
		defer o.unlock()
		if gen != o.gen || ex != o.exchangeID || o.phase != PhaseUploading {
			return
		}
		o.notice = NoticeSlowProcessing
		o.emitLocked(EventNotice, o.notice)
	})
}

func (o *Orchestrator) clearAnswerLocked() {
	o.exchangeID = ""
	o.transcript = ""
	o.analysis = nil
	o.micBlob = nil
	o.videoBlob = nil
	o.videoID = ""
	o.notice = ""
	o.awaitingResult = false
}

func (o *Orchestrator) resetLocked() {
	o.stopTimersLocked()
	o.clearAnswerLocked()
	o.interviewID = ""
	o.mlInterviewID = ""
	o.question = ""
	o.turnIndex = 0
	o.optimalTime = 0
	o.errMsg = ""
	o.preparing = false
	o.speaking = false
	o.cameraPrompt = false
	o.micPrompt = false
	o.skipResults = 0
	o.skipAnalysis = false
	o.submitting = false
	o.discarding = false
}

func (o *Orchestrator) stopTimersLocked() {
	if o.errTimer != nil {
		o.errTimer.Stop()
		o.errTimer = nil
	}
	if o.noticeTimer != nil {
		o.noticeTimer.Stop()
		o.noticeTimer = nil
	}
}

func (o *Orchestrator) emitLocked(t EventType, msg string) {
	o.outbox = append(o.outbox, pending{typ: t, msg: msg, phase: o.phase, interviewID: o.interviewID})
}

// unlock releases the state lock and then delivers queued events.
func (o *Orchestrator) unlock() {
	out := o.outbox
	o.outbox = nil
	o.mu.Unlock()

	for _, p := range out {
		if p.typ == EventPhase && p.interviewID != "" {
			o.journal.PhaseChanged(o.ctx, p.interviewID, string(p.phase))
		}
		ev := Event{Type: p.typ, Phase: p.phase, Message: p.msg, Snapshot: o.Snapshot(), At: o.now()}
		if err := o.events.Publish(o.ctx, ev); err != nil {
			o.log.WithError(err).WithField("type", p.typ).Debug("event not published")
		}
	}
}
