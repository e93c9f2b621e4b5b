package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sameehj/gridbridge/pkg/runtime"
	"github.com/sameehj/gridbridge/pkg/transform"
	"github.com/sameehj/gridbridge/pkg/workbook"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func runCmd() *cobra.Command {
	var input, output, code, script, engine, timeout, active string
	var showDiff bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transform a workbook file",
		Example: `  gridbridge run --input book.xlsx --code 'dfs["Sheet1"].iloc[0, 0] = "X"' --output out.xlsx
  gridbridge run --input book.json.zst --script cleanup.star --diff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			src, err := resolveCode(a, code, script)
			if err != nil {
				return err
			}
			budget, err := parseTimeout(timeout)
			if err != nil {
				return err
			}
			sheets, err := workbook.Read(input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			ctx, stop := signalContext()
			defer stop()
			result, err := a.service.Transform(ctx, transform.Request{
				Code:            src,
				Sheets:          sheets,
				ActiveSheetName: active,
				Engine:          engine,
				TimeoutMs:       budget.Milliseconds(),
			})
			if err != nil {
				te := transform.AsError(err)
				fmt.Fprintln(cmd.ErrOrStderr(), te.Message)
				return fmt.Errorf("transform failed (%s)", te.Kind)
			}

			fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)

			if showDiff {
				if err := workbook.WriteDiff(cmd.OutOrStdout(), workbook.Diff(sheets, result.Sheets)); err != nil {
					return err
				}
			}
			switch {
			case output != "":
				if err := workbook.Write(output, result.Sheets); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
			case !showDiff:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "workbook to read (.xlsx, .csv, .json, optionally .zst or .xz)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the result; JSON to stdout when empty")
	addCodeFlags(cmd.Flags(), &code, &script)
	cmd.Flags().StringVar(&engine, "engine", "", "execution engine")
	cmd.Flags().StringVar(&timeout, "timeout", "", "wall-clock budget, e.g. 5s")
	cmd.Flags().StringVar(&active, "active-sheet", "", "active sheet name passed to the transform")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print changed rows per sheet")
	_ = cmd.MarkFlagRequired("input")
	cmd.MarkFlagsMutuallyExclusive("code", "script")
	return cmd
}

func checkCmd() *cobra.Command {
	var code, script string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compile a transform without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			src, err := resolveCode(a, code, script)
			if err != nil {
				return err
			}
			if err := a.starlark.Check(src); err != nil {
				var ce *runtime.CodeError
				if errors.As(err, &ce) {
					fmt.Fprintln(cmd.ErrOrStderr(), ce.Traceback())
				}
				return fmt.Errorf("check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	addCodeFlags(cmd.Flags(), &code, &script)
	cmd.MarkFlagsMutuallyExclusive("code", "script")
	return cmd
}

func addCodeFlags(fs *pflag.FlagSet, code, script *string) {
	fs.StringVarP(code, "code", "c", "", "transform source")
	fs.StringVarP(script, "script", "s", "", "transform file or library script name")
}

// resolveCode returns inline code, the contents of a file, or a library
// script, in that order.
func resolveCode(a *app, code, script string) (string, error) {
	if code != "" {
		return code, nil
	}
	if script == "" {
		return "", errors.New("one of --code or --script is required")
	}
	data, err := os.ReadFile(script)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if s, ok := a.registry.Get(script); ok {
		return s.Content, nil
	}
	return "", fmt.Errorf("script not found: %s", script)
}
