package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MrWong99/aura/internal/chat"
	"github.com/MrWong99/aura/pkg/provider/image"
)

func newChatCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Text chat; /image <prompt> draws a picture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), rt)
		},
	}
}

// runChat is a line-based text conversation. Lines starting with /image
// generate a picture instead.
func runChat(ctx context.Context, rt *runtime) error {
	a, err := newApp(ctx, rt)
	if err != nil {
		return err
	}
	defer shutdown(a)

	conv, err := a.Chat()
	if err != nil {
		return err
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchConfig(watchCtx, rt, a)

	fmt.Fprintln(rt.stdout, "Type a message. /image [--res 2K] [--aspect 16:9] <prompt> draws, /quit leaves.")
	lines := readLines(ctx, rt.stdin)
	for {
		fmt.Fprint(rt.stdout, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(rt.stdout)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(rt.stdout)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/image"):
			req, output, err := parseImageArgs(strings.Fields(strings.TrimPrefix(line, "/image")))
			if err != nil {
				fmt.Fprintln(rt.stdout, "!", err)
				continue
			}
			res, err := conv.Imagine(ctx, req)
			if err != nil {
				fmt.Fprintln(rt.stdout, "!", err)
				continue
			}
			path, err := writeImage(output, res, time.Now())
			if err != nil {
				fmt.Fprintln(rt.stdout, "!", err)
				continue
			}
			printImage(rt.stdout, path, res)
		default:
			reply, err := conv.Send(ctx, line)
			if err != nil {
				fmt.Fprintln(rt.stdout, "!", err)
				continue
			}
			fmt.Fprintln(rt.stdout, reply)
		}
	}
}

// ── Images ────────────────────────────────────────────────────────────────────

// imageFlags are shared by the image command and the /image chat command.
type imageFlags struct {
	res    string
	aspect string
	output string
}

func (f *imageFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.res, "res", string(image.Resolution1K), "resolution: 1K, 2K or 4K")
	fs.StringVar(&f.aspect, "aspect", string(image.Aspect1x1), "aspect ratio: 1:1, 3:4, 4:3, 9:16 or 16:9")
	fs.StringVarP(&f.output, "output", "o", "", "output file (default aura-<time>.<ext>)")
}

// request builds a validated request from the flags and the prompt words.
func (f *imageFlags) request(words []string) (image.Request, error) {
	req := image.Request{
		Prompt:      strings.Join(words, " "),
		Resolution:  image.Resolution(strings.ToUpper(f.res)),
		AspectRatio: image.AspectRatio(f.aspect),
	}
	if err := req.Validate(); err != nil {
		return image.Request{}, err
	}
	return req, nil
}

// parseImageArgs reads the arguments of a /image chat line.
func parseImageArgs(args []string) (image.Request, string, error) {
	var f imageFlags
	fs := pflag.NewFlagSet("image", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return image.Request{}, "", err
	}
	req, err := f.request(fs.Args())
	return req, f.output, err
}

func newImageCmd(rt *runtime) *cobra.Command {
	var f imageFlags
	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate one image and write it to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(args)
			if err != nil {
				return err
			}
			if rt.providers.Image == nil {
				return chat.ErrNoImageProvider
			}
			res, err := chat.Generate(cmd.Context(), rt.providers.Image, req, rt.metrics)
			if err != nil {
				return err
			}
			path, err := writeImage(f.output, res, time.Now())
			if err != nil {
				return err
			}
			printImage(rt.stdout, path, res)
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// writeImage saves res to path, or to a timestamped name when path is empty.
func writeImage(path string, res *image.Result, now time.Time) (string, error) {
	if path == "" {
		path = "aura-" + now.Format("20060102-150405") + imageExt(res.MIMEType)
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func printImage(w io.Writer, path string, res *image.Result) {
	fmt.Fprintf(w, "saved %s (%d bytes)\n", path, len(res.Data))
	if res.Caption != "" {
		fmt.Fprintln(w, res.Caption)
	}
}
