package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vnmchuo/inference-gateway/internal/provider"
	"github.com/vnmchuo/inference-gateway/internal/proxy"
)

func chatCmd() *cobra.Command {
	var (
		temperature float64
		maxTokens   int
		format      string
	)

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a text prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			opts := commonOptions()
			var params provider.GenerationParams
			if cmd.Flags().Changed("temperature") {
				params.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				params.MaxTokens = &maxTokens
			}
			opts = append(opts, proxy.WithParams(params), proxy.WithResponseFormat(provider.ResponseFormat(format)))

			messages := []provider.Message{{Role: provider.RoleUser, Content: strings.Join(args, " ")}}
			resp, err := svc.Chat(ctx, messages, opts...)
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}

	cmd.Flags().Float64VarP(&temperature, "temperature", "t", 0, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum output tokens")
	cmd.Flags().StringVar(&format, "format", string(provider.FormatText), "response format: text or json")

	return cmd
}

func visionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vision <image> <prompt>",
		Short: "Ask a question about an image file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := provider.AttachmentFromFile(args[0])
			if err != nil {
				return err
			}
			svc, err := newService()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			resp, err := svc.AnalyzeImage(ctx, strings.Join(args[1:], " "), []provider.Attachment{img}, commonOptions()...)
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
}

func imageCmd() *cobra.Command {
	var (
		output string
		inputs []string
	)

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate an image, or edit the --input images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := commonOptions()
			for _, path := range inputs {
				a, err := provider.AttachmentFromFile(path)
				if err != nil {
					return err
				}
				opts = append(opts, proxy.WithAttachments(a))
			}

			svc, err := newService()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			resp, err := svc.GenerateImage(ctx, strings.Join(args, " "), opts...)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(resp)
			}
			for i, img := range resp.Images {
				if err := saveImage(img, output, i); err != nil {
					return err
				}
			}
			for _, w := range warnings(resp) {
				fmt.Fprintln(os.Stderr, color.YellowString("warning:"), w)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "image.png", "output file; extra images get a numeric suffix")
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "image files to edit")

	return cmd
}

// saveImage writes a data URI to disk and prints plain URLs.
func saveImage(img, output string, index int) error {
	rest, ok := strings.CutPrefix(img, "data:")
	if !ok {
		fmt.Println(img)
		return nil
	}
	_, data, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return fmt.Errorf("unexpected image encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	path := output
	if index > 0 {
		ext := filepath.Ext(output)
		path = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(output, ext), index, ext)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func warnings(resp *provider.Response) []string {
	w, _ := resp.Metadata["warnings"].([]string)
	return w
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the static model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			models := svc.ListModels()
			if asJSON {
				return printJSON(models)
			}
			for _, m := range models {
				caps := make([]string, len(m.Capabilities))
				for i, c := range m.Capabilities {
					caps[i] = string(c)
				}
				fmt.Printf("%s %s\n", color.CyanString("%-32s", m.RegistryName()), strings.Join(caps, ","))
			}
			return nil
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show which providers can serve requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			status := svc.ProviderStatus(cmd.Context())
			if asJSON {
				return printJSON(status)
			}
			names := make([]string, 0, len(status))
			for name := range status {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				state := color.RedString("✗ unavailable")
				if status[name] {
					state = color.GreenString("✓ ready")
				}
				fmt.Printf("%-10s %s\n", name, state)
			}
			return nil
		},
	}
}
