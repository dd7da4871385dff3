/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v2"

	"goslidewriter/internal/domain"
	"goslidewriter/internal/editor"
	"goslidewriter/internal/version"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "goslidewriter",
		Usage:   "AI-assisted slide deck editor",
		Version: version.String(),
		Commands: []*cli.Command{
			newCmd(env),
			listCmd(env),
			showCmd(env),
			deleteCmd(env),
			illustrateCmd(env),
			themeCmd(env),
			themesCmd(env),
			insertCmd(env),
			notesCmd(env),
			versionCmd(),
		},
	}
	// Errors are returned from Run instead of exiting.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// slideView is the printable form of a slide; image payloads are reduced
// to their size.
type slideView struct {
	Index        int    `json:"index"`
	ID           string `json:"id"`
	Title        string `json:"title"`
	Body         string `json:"body,omitempty"`
	Layout       string `json:"layout"`
	VisualPrompt string `json:"visualPrompt,omitempty"`
	ImageBytes   int    `json:"imageBytes"`
	SpeakerNotes string `json:"speakerNotes,omitempty"`
}

type deckView struct {
	ID      string      `json:"id"`
	Topic   string      `json:"topic"`
	ThemeID string      `json:"themeId,omitempty"`
	Slides  []slideView `json:"slides"`
}

func viewOf(d domain.Deck) deckView {
	v := deckView{ID: d.ID, Topic: d.Topic, ThemeID: d.ThemeID, Slides: make([]slideView, len(d.Slides))}
	for i, s := range d.Slides {
		v.Slides[i] = slideView{
			Index:        i,
			ID:           s.ID,
			Title:        s.Title,
			Body:         s.Body,
			Layout:       string(s.Layout),
			VisualPrompt: s.VisualPrompt,
			ImageBytes:   len(s.Image),
			SpeakerNotes: s.SpeakerNotes,
		}
	}
	return v
}

// newCmd creates the new command.
func newCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a deck from a topic using the outline service",
		ArgsUsage: "<topic>",
		Action: func(c *cli.Context) error {
			topic := c.Args().First()
			if topic == "" {
				return outputError(errors.New("topic is required"))
			}
			d, err := editor.NewDeckFromTopic(c.Context, env.gen, topic, nil)
			if err != nil {
				return outputError(err)
			}
			if err := env.store.Save(c.Context, d); err != nil {
				return outputError(err)
			}
			env.log.Info("deck created", slog.String("deck", d.ID), slog.Int("slides", len(d.Slides)))
			env.telemetry.Emit("deck_created", map[string]any{"slides": len(d.Slides)})
			return outputJSON(c.App.Writer, viewOf(d))
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved decks, most recently updated first",
		Action: func(c *cli.Context) error {
			sums, err := env.store.ListAll(c.Context)
			if err != nil {
				return outputError(err)
			}
			if sums == nil {
				sums = []domain.DeckSummary{}
			}
			return outputJSON(c.App.Writer, sums)
		},
	}
}

// showCmd creates the show command.
func showCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a deck",
		ArgsUsage: "<deck-id>",
		Action: func(c *cli.Context) error {
			d, err := env.store.Load(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, viewOf(d))
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a deck",
		ArgsUsage: "<deck-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if err := env.store.Delete(c.Context, id); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"deleted": id})
		},
	}
}

// openSession opens a deck for editing and registers it for crash autosave.
func openSession(c *cli.Context, env *appEnv) (*editor.Session, error) {
	s, err := editor.Open(c.Context, c.Args().First(), env.sessionOptions())
	if err != nil {
		return nil, err
	}
	if env.crash != nil {
		env.crash.Deck = s
	}
	return s, nil
}

// illustrateCmd creates the illustrate command.
func illustrateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "illustrate",
		Usage:     "Generate images for slides that have none",
		ArgsUsage: "<deck-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Regenerate slides that already have an image"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c, env)
			if err != nil {
				return outputError(err)
			}
			defer s.Close()

			requested := 0
			for i := range s.Slides() {
				ok, err := s.RequestGeneration(i, c.Bool("force"))
				if err != nil {
					return outputError(err)
				}
				if ok {
					requested++
				}
			}
			s.Wait()
			if err := s.Save(c.Context); err != nil {
				return outputError(err)
			}

			failed := 0
			for _, sl := range s.Slides() {
				if sl.GenerationFailed {
					failed++
				}
			}
			return outputJSON(c.App.Writer, map[string]any{
				"deck":      s.Deck().ID,
				"requested": requested,
				"failed":    failed,
			})
		},
	}
}

// themeCmd creates the theme command.
func themeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Apply a theme background to every slide",
		ArgsUsage: "<deck-id> <theme-id>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return outputError(errors.New("deck id and theme id are required"))
			}
			s, err := openSession(c, env)
			if err != nil {
				return outputError(err)
			}
			defer s.Close()
			if err := s.ApplyTheme(c.Context, c.Args().Get(1)); err != nil {
				return outputError(err)
			}
			if err := s.Save(c.Context); err != nil {
				return outputError(err)
			}
			env.telemetry.Emit("theme_applied", map[string]any{"theme": c.Args().Get(1)})
			return outputJSON(c.App.Writer, viewOf(s.Deck()))
		},
	}
}

// themesCmd creates the themes command.
func themesCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "themes",
		Usage: "List available themes",
		Action: func(c *cli.Context) error {
			return outputJSON(c.App.Writer, env.themes.List())
		},
	}
}

// insertCmd creates the insert command.
func insertCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "insert",
		Usage:     "Insert a generated slide",
		ArgsUsage: "<deck-id> <position> <description>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 3 {
				return outputError(errors.New("deck id, position and description are required"))
			}
			at, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return outputError(fmt.Errorf("position: %w", err))
			}
			s, err := openSession(c, env)
			if err != nil {
				return outputError(err)
			}
			defer s.Close()
			idx, err := s.InsertSlide(c.Context, at, c.Args().Get(2))
			if err != nil {
				return outputError(err)
			}
			if err := s.Save(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, viewOf(s.Deck()).Slides[idx])
		},
	}
}

// notesCmd creates the notes command.
func notesCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "notes",
		Usage:     "Rewrite the speaker notes of a slide",
		ArgsUsage: "<deck-id> <slide-index>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: string(domain.NotesEnhance), Usage: "enhance|shorten|expand|translate"},
			&cli.StringFlag{Name: "lang", Usage: "Target language for translate"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return outputError(errors.New("deck id and slide index are required"))
			}
			i, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return outputError(fmt.Errorf("slide index: %w", err))
			}
			s, err := openSession(c, env)
			if err != nil {
				return outputError(err)
			}
			defer s.Close()
			notes, err := s.EnhanceNotes(c.Context, i, domain.NotesMode(c.String("mode")), c.String("lang"))
			if err != nil {
				return outputError(err)
			}
			if err := s.Save(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"index": i, "speakerNotes": notes})
		},
	}
}

// versionCmd creates the version command.
func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintln(c.App.Writer, version.String())
			return err
		},
	}
}

// outputJSON outputs v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err for the CLI.
func outputError(err error) error {
	switch {
	case errors.Is(err, domain.ErrDeckNotFound):
		return cli.Exit("[not_found] "+err.Error(), 1)
	case errors.Is(err, domain.ErrUnknownTheme), errors.Is(err, domain.ErrIndexOutOfRange):
		return cli.Exit("[invalid] "+err.Error(), 2)
	}
	return cli.Exit(err.Error(), 1)
}
