package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Soln1shko/AI-HR/internal/interview"
	"github.com/Soln1shko/AI-HR/internal/providers/tts"
)

var (
	runVacancy string
	runMute    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one interview in the terminal (commands on stdin, events on stdout)",
	Long: `Runs a single interview without the control API. Commands, one per line:
  camera    enable the camera
  record    start recording the answer
  stop      stop recording and transcribe
  rerecord  discard the answer and record again
  submit    send the answer and move to the next question
  state     print the current state
  exit      leave the interview`,
	RunE: runInterview,
}

func init() {
	runCmd.Flags().StringVar(&runVacancy, "vacancy", "", "vacancy id to interview for (required)")
	runCmd.Flags().BoolVar(&runMute, "mute", false, "do not play questions aloud")
	_ = runCmd.MarkFlagRequired("vacancy")
}

func runInterview(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	// events go to stdout; keep it clean for them
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	var player tts.Player
	if runMute {
		player = tts.NopPlayer{}
	}
	if err := rt.buildInterview(ctx, player); err != nil {
		return err
	}
	iv := rt.interview

	events, unsubscribe := rt.events.Subscribe(128)
	defer unsubscribe()

	out := &jsonLines{enc: json.NewEncoder(cmd.OutOrStdout())}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			_ = out.Encode(ev)
			if ev.Type == interview.EventPhase && ev.Phase.Terminal() {
				return
			}
		}
	}()

	if err := iv.Start(ctx, runVacancy); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return iv.Exit(context.Background())
		case line, ok := <-lines:
			if !ok {
				return iv.Exit(context.Background())
			}
			if err := dispatch(ctx, iv, line, out); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out <- line
		}
	}
}

// jsonLines serializes writes from the event loop and the command loop.
type jsonLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (j *jsonLines) Encode(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(v)
}

func dispatch(ctx context.Context, iv *interview.Orchestrator, line string, out *jsonLines) error {
	switch strings.ToLower(line) {
	case "camera":
		if !iv.EnableCamera(ctx) {
			return interview.ErrCameraUnavailable
		}
		return nil
	case "record":
		return iv.StartRecording(ctx)
	case "stop":
		return iv.StopRecording(ctx)
	case "rerecord":
		return iv.Rerecord(ctx)
	case "submit":
		return iv.Submit(ctx)
	case "exit":
		return iv.Exit(ctx)
	case "state":
		return out.Encode(iv.Snapshot())
	default:
		return fmt.Errorf("unknown command %q", line)
	}
}
