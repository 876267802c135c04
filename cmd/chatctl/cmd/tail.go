package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"just_us/internal/client"
	"just_us/internal/composer"
	"just_us/internal/domain"
	"just_us/internal/liveview"
	"just_us/internal/state"
	"just_us/internal/typing"
	"just_us/pkg/logger"
)

func init() {
	tailCmd.Flags().BoolP("interactive", "i", false, "read messages and /commands from stdin")
	tailCmd.Flags().Bool("mark-seen", true, "mark peer messages seen while they are on screen")
	tailCmd.Flags().Int("rows", 40, "number of messages treated as visible")
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the chat live",
	Long: `tail prints the live window and every change to it. With -i, lines read
from stdin are sent as messages; /help lists the available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		allowed, err := s.api.Allowed(ctx)
		if err != nil {
			return err
		}
		if !allowed.Allowed {
			return fmt.Errorf("%s is not allowed to use this chat", allowed.User.Email)
		}

		prefs, err := client.LoadPrefs(s.prefsPath)
		if err != nil {
			return err
		}
		st := prefs.ClientState()
		unpersist := client.Persist(st, s.prefsPath, func(err error) {
			s.log.Warn("Failed to save prefs", "error", err)
		})
		defer unpersist()

		stream, err := client.Dial(ctx, s.api.BaseURL(), s.api.Token(), s.log)
		if err != nil {
			return err
		}
		defer stream.Close()

		rows, _ := cmd.Flags().GetInt("rows")
		markSeen, _ := cmd.Flags().GetBool("mark-seen")
		interactive, _ := cmd.Flags().GetBool("interactive")

		t := newTailer(s.api, stream, st, allowed.User.ID, rows, markSeen, cmd.OutOrStdout(), s.log)
		defer t.close()

		go t.presence.Run(ctx)
		go t.reminder.Run(ctx)
		if markSeen {
			t.seen.Start()
		}
		if interactive {
			t.enableInput(stream, cmd.ErrOrStderr())
			go t.readLines(ctx, cmd.InOrStdin())
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case env, ok := <-stream.Events():
				if !ok {
					if err := stream.Err(); err != nil && !errors.Is(err, client.ErrStreamClosed) {
						return fmt.Errorf("connection lost: %w", err)
					}
					return nil
				}
				t.handleEvent(ctx, env)
			}
		}
	},
}

// syncWriter - вывод пишется из нескольких горутин.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Println(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	printLine(w.w, format, args...)
}

func (w *syncWriter) Print(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprint(w.w, s)
}

// tailer связывает поток событий с клиентскими компонентами ленты.
type tailer struct {
	api      *client.API
	state    *state.ClientState
	selfID   string
	markSeen bool
	out      *syncWriter
	log      logger.Logger

	view     *liveview.View
	seen     *liveview.SeenTracker
	cue      *liveview.SoundCue
	reminder *liveview.Reminder
	presence *client.PresenceWatcher

	composer *composer.Composer
	typing   *typing.Debouncer

	mu       sync.Mutex
	printed  map[uuid.UUID]string
	lastPeer client.PeerPresence
}

func newTailer(api *client.API, checker client.StatusChecker, st *state.ClientState, selfID string, rows int, markSeen bool, out io.Writer, log logger.Logger) *tailer {
	t := &tailer{
		api:      api,
		state:    st,
		selfID:   selfID,
		markSeen: markSeen,
		out:      &syncWriter{w: out},
		log:      log,
		printed:  make(map[uuid.UUID]string),
	}

	// одна строка на сообщение
	t.view = liveview.NewView(api, func(*domain.Message) float64 { return 1 }, liveview.DefaultPerPage, log)
	t.view.Resize(float64(rows))
	t.seen = liveview.NewSeenTracker(t.view, api, selfID, liveview.SeenRecheckInterval, log)
	t.cue = liveview.NewSoundCue(selfID, st.SoundAllowed, func() { t.out.Print("\a") }, liveview.SoundResetDelay)
	t.reminder = liveview.NewReminder(t.view, selfID, st.ReminderInterval, func(n int) {
		t.out.Println("⏰ %d unread message(s)", n)
	})
	t.presence = client.NewPresenceWatcher(checker, selfID, client.StatusPollInterval, t.onPresence, log)
	return t
}

func (t *tailer) enableInput(writer typing.Writer, errOut io.Writer) {
	t.typing = typing.NewDebouncer(writer, typing.DefaultIdle, t.log)
	t.composer = composer.New(t.api, t.state, t.typing, &cliToaster{w: errOut}, t.log)
}

func (t *tailer) close() {
	t.seen.Stop()
	if t.typing != nil {
		t.typing.Stop()
	}
	if t.composer != nil {
		t.composer.Wait()
	}
}

func (t *tailer) handleEvent(ctx context.Context, env *domain.Envelope) {
	switch env.Type {
	case domain.EventSnapshot:
		var payload domain.SnapshotPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.log.Warn("Malformed snapshot", "error", err)
			return
		}
		t.view.ApplySnapshot(payload.Messages)
		t.printChanged(payload.Messages)
		t.cue.Observe(payload.Messages)
		if t.markSeen {
			t.seen.Check(ctx)
		}

	case domain.EventTyping, domain.EventStatus:
		t.presence.HandleEvent(env)

	case domain.EventError:
		var e domain.ErrorPayload
		_ = json.Unmarshal(env.Payload, &e)
		t.log.Warn("Server reported an error", "error", e.Error)
	}
}

// printChanged печатает новые сообщения и те, что изменились с прошлого снимка.
func (t *tailer) printChanged(msgs []*domain.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, m := range msgs {
		line := formatMessage(m)
		if t.printed[m.ID] == line {
			continue
		}
		t.printed[m.ID] = line
		t.out.Println("%s", line)
		n++
	}
	return n
}

func (t *tailer) onPresence(p client.PeerPresence) {
	t.mu.Lock()
	prev := t.lastPeer
	t.lastPeer = p
	t.mu.Unlock()

	switch {
	case p.Typing != nil && (prev.Typing == nil || prev.Typing.ID != p.Typing.ID):
		t.out.Println("… %s is typing", p.Typing.Username)
	case p.Online != prev.Online:
		if p.Online {
			t.out.Println("● peer is online")
		} else if p.LastOnlineAt != nil {
			t.out.Println("○ peer was last online %s", p.LastOnlineAt.Local().Format(time.RFC822))
		} else {
			t.out.Println("○ peer is offline")
		}
	}
}

func (t *tailer) readLines(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		t.handleLine(ctx, scanner.Text())
	}
}

const tailHelp = `/older             load the previous page
/reply <id>        reply to a message with the next line
/edit <id>         replace the text of your message with the next line
/cancel            drop the pending reply or edit
/sound on|off      toggle the send sound
/remind <d>|off    remind about unread messages every <d>
/help              show this help`

func (t *tailer) handleLine(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		t.composer.SetText(line)
		t.composer.Submit()
		return
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/older":
		if t.view.LoadOlder(ctx) {
			t.out.Println("── older ──")
			t.printChanged(t.view.Messages())
		} else {
			t.out.Println("── no older messages ──")
		}
	case "/reply", "/edit":
		target, err := resolveMessage(ctx, t.api, arg)
		if err != nil {
			t.out.Println("✗ %v", err)
			return
		}
		if fields[0] == "/reply" {
			t.composer.StartReply(target)
		} else {
			t.composer.StartEdit(target)
		}
	case "/cancel":
		t.composer.Cancel()
	case "/sound":
		t.state.SoundAllowed.Set(arg != "off")
	case "/remind":
		if arg == "off" {
			t.state.ReminderInterval.Set(0)
			return
		}
		d, err := time.ParseDuration(arg)
		if err != nil || d <= 0 {
			t.out.Println("✗ invalid interval %q", arg)
			return
		}
		t.state.ReminderInterval.Set(d)
	default:
		t.out.Println("%s", tailHelp)
	}
}
