package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medcmd/internal/api"
	"medcmd/internal/config"
	"medcmd/internal/medication"
	"medcmd/pkg"
	"medcmd/src/logger"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := startup(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			go a.processor.Contexts().RunJanitor(ctx, a.cfg.ConversationConfig.PruneInterval)

			srv := &http.Server{
				Addr:         a.cfg.ServerConfig.Addr,
				Handler:      api.NewHandler(a.processor).Router(),
				ReadTimeout:  a.cfg.ServerConfig.ReadTimeout,
				WriteTimeout: a.cfg.ServerConfig.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newChatCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session on stdin (/reset starts over, /quit exits)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := startup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()

			return runChat(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full turn results as JSON")
	return cmd
}

func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer, asJSON bool) error {
	sessionID := uuid.NewString()
	scanner := bufio.NewScanner(in)

	fmt.Fprintf(out, "Session %s. Type a command.\n> ", sessionID)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := a.processor.Contexts().Clear(ctx, sessionID); err != nil {
				return err
			}
			sessionID = uuid.NewString()
			fmt.Fprintf(out, "Session %s.\n> ", sessionID)
			continue
		}

		res, err := a.processor.Process(ctx, pkg.TurnRequest{Utterance: line, SessionID: sessionID})
		if err != nil {
			return err
		}
		if err := printTurn(out, res, asJSON); err != nil {
			return err
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func newReplayCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Replay one utterance per line through a single session and print the results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			a, err := startup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()

			results, err := a.processor.ProcessConversation(cmd.Context(), sessionID, strings.Split(string(data), "\n"))
			if err != nil {
				return err
			}
			encoded, err := sonic.ConfigStd.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return err
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (random when empty)")
	return cmd
}

func newToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool [NAME ARGS_JSON]",
		Short: "List the formulary tools, or run one with JSON arguments",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := domainConfigPath
			if path == "" {
				path = os.Getenv("DOMAIN_CONFIG")
			}
			domain, err := config.LoadDomainConfig(path)
			if err != nil {
				return err
			}
			kb, err := medication.LoadKnowledgeBase(domain.MedicationsFile)
			if err != nil {
				return err
			}
			tools, err := medication.Tools(kb)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, t := range tools {
				info, err := t.Info(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 0 {
					fmt.Fprintf(out, "%-20s %s\n", info.Name, info.Desc)
					continue
				}
				if info.Name != args[0] {
					continue
				}
				input := "{}"
				if len(args) == 2 {
					input = args[1]
				}
				result, err := t.InvokableRun(cmd.Context(), input)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, result)
				return err
			}
			if len(args) > 0 {
				return fmt.Errorf("unknown tool %q", args[0])
			}
			return nil
		},
	}
}

func printTurn(out io.Writer, res *pkg.TurnResult, asJSON bool) error {
	if asJSON {
		encoded, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(encoded))
		return err
	}

	fmt.Fprintf(out, "intent: %s (%.2f)", res.Intent.PrimaryIntent, res.Intent.Confidence)
	if res.ActiveIntent != res.Intent.PrimaryIntent {
		fmt.Fprintf(out, ", continuing %s", res.ActiveIntent)
	}
	fmt.Fprintln(out)

	for _, e := range res.Entities.All() {
		fmt.Fprintf(out, "  %-14s %-12s %s\n", e.Category, e.RawLabel, e.Text)
	}
	if v := res.MedicationValidation; v != nil {
		fmt.Fprintf(out, "medication: step=%s valid=%t %s\n", v.ValidationStep, v.IsValid, v.Message)
		for _, n := range v.Notes {
			fmt.Fprintf(out, "  note: %s\n", n)
		}
	}

	switch {
	case res.FollowUpQuestion != "":
		fmt.Fprintln(out, res.FollowUpQuestion)
	case res.Complete:
		fmt.Fprintln(out, "Done.")
	}
	return nil
}
