package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"just_us/internal/client"
	"just_us/internal/composer"
	"just_us/internal/domain"
)

func init() {
	sendCmd.Flags().String("image", "", "attach an image file")
	sendCmd.Flags().String("audio", "", "attach a voice recording file")
	sendCmd.Flags().String("gif", "", "attach the first GIF found for this query")
	sendCmd.Flags().String("reply-to", "", "id (or id prefix) of the message to reply to")

	rootCmd.AddCommand(sendCmd, editCmd, reactCmd, unreactCmd, unsendCmd, undoCmd)
}

// cliToaster печатает ошибки фоновой записи и запоминает, что они были.
type cliToaster struct {
	mu     sync.Mutex
	w      io.Writer
	failed []string
}

func (t *cliToaster) Error(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = append(t.failed, message)
	fmt.Fprintln(t.w, "✗", message)
}

func (t *cliToaster) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.failed) == 0 {
		return nil
	}
	return errors.New(strings.Join(t.failed, "; "))
}

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Send a message, optionally with one attachment",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := s.requestContext(cmd)
		defer cancel()

		prefs, err := client.LoadPrefs(s.prefsPath)
		if err != nil {
			return err
		}
		toaster := &cliToaster{w: cmd.ErrOrStderr()}
		c := composer.New(s.api, prefs.ClientState(), nil, toaster, s.log)

		c.SetText(strings.Join(args, " "))
		if err := attachFromFlags(ctx, cmd, s.api, c); err != nil {
			return err
		}

		if ref, _ := cmd.Flags().GetString("reply-to"); ref != "" {
			target, err := resolveMessage(ctx, s.api, ref)
			if err != nil {
				return err
			}
			c.StartReply(target)
		}

		if !c.Submit() {
			return errors.New("nothing to send")
		}
		c.Wait()
		if err := toaster.err(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sent")
		return nil
	},
}

func attachFromFlags(ctx context.Context, cmd *cobra.Command, api *client.API, c *composer.Composer) error {
	image, _ := cmd.Flags().GetString("image")
	audio, _ := cmd.Flags().GetString("audio")
	gifQuery, _ := cmd.Flags().GetString("gif")

	set := 0
	for _, v := range []string{image, audio, gifQuery} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return errors.New("only one attachment is allowed")
	}

	switch {
	case image != "":
		dataURL, err := fileDataURL(image)
		if err != nil {
			return err
		}
		c.AttachImage(dataURL)
	case audio != "":
		dataURL, err := fileDataURL(audio)
		if err != nil {
			return err
		}
		c.AttachAudio(dataURL)
	case gifQuery != "":
		page, err := api.SearchGifs(ctx, gifQuery, "", 1)
		if err != nil {
			return err
		}
		if len(page.Results) == 0 {
			return fmt.Errorf("no GIFs found for %q", gifQuery)
		}
		c.AttachGif(page.Results[0])
	}
	return nil
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <text...>",
	Short: "Edit the text of your own message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := s.requestContext(cmd)
		defer cancel()

		target, err := resolveMessage(ctx, s.api, args[0])
		if err != nil {
			return err
		}

		prefs, err := client.LoadPrefs(s.prefsPath)
		if err != nil {
			return err
		}
		toaster := &cliToaster{w: cmd.ErrOrStderr()}
		c := composer.New(s.api, prefs.ClientState(), nil, toaster, s.log)
		c.StartEdit(target)
		c.SetText(strings.Join(args[1:], " "))

		if !c.Submit() {
			return errors.New("nothing to send")
		}
		c.Wait()
		if err := toaster.err(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "edited", shortID(target.ID))
		return nil
	},
}

// messageAction - общая обвязка для команд вида "<verb> <id>".
func messageAction(use, short string, nargs int, call func(ctx context.Context, api *client.API, id uuid.UUID, args []string) (*domain.Message, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := s.requestContext(cmd)
			defer cancel()

			target, err := resolveMessage(ctx, s.api, args[0])
			if err != nil {
				return err
			}
			m, err := call(ctx, s.api, target.ID, args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatMessage(m))
			return nil
		},
	}
}

var reactCmd = messageAction("react <id> <emoji>", "Set the reaction on a message", 2,
	func(ctx context.Context, api *client.API, id uuid.UUID, args []string) (*domain.Message, error) {
		return api.SetReaction(ctx, id, args[0])
	})

var unreactCmd = messageAction("unreact <id>", "Remove your reaction from a message", 1,
	func(ctx context.Context, api *client.API, id uuid.UUID, _ []string) (*domain.Message, error) {
		return api.ClearReaction(ctx, id)
	})

var unsendCmd = messageAction("unsend <id>", "Unsend one of your messages", 1,
	func(ctx context.Context, api *client.API, id uuid.UUID, _ []string) (*domain.Message, error) {
		return api.Unsend(ctx, id)
	})

var undoCmd = messageAction("undo <id>", "Restore a message you unsent", 1,
	func(ctx context.Context, api *client.API, id uuid.UUID, _ []string) (*domain.Message, error) {
		return api.UndoUnsend(ctx, id)
	})

// resolveMessage принимает полный id или префикс из вывода tail.
// Префикс ищется только в живом окне.
func resolveMessage(ctx context.Context, api *client.API, ref string) (*domain.Message, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if ref == "" {
		return nil, errors.New("message id is empty")
	}

	page, err := api.Latest(ctx, 0)
	if err != nil {
		return nil, err
	}

	var match *domain.Message
	for _, m := range page.Messages {
		if !strings.HasPrefix(m.ID.String(), ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("message id %q is ambiguous", ref)
		}
		match = m
	}
	if match != nil {
		return match, nil
	}

	if id, err := uuid.Parse(ref); err == nil {
		return &domain.Message{ID: id}, nil
	}
	return nil, fmt.Errorf("message %q not found in the recent messages", ref)
}
