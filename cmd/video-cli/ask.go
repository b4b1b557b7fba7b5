package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fpang/video-summarizer/internal/boot"
	"github.com/fpang/video-summarizer/internal/cli"
	"github.com/fpang/video-summarizer/internal/service"
	"github.com/spf13/cobra"
)

var (
	askVideoFlag    string
	askQuestionFlag string
	askThreadFlag   string
	askResetFlag    bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask questions about a summarized video",
	Long: `Ask a question answered from the video's indexed summary. Without
--question an interactive conversation starts; an empty line ends it.
Turns in the same --thread share history.`,
	RunE: runAsk,
}

func init() {
	f := askCmd.Flags()
	f.StringVarP(&askVideoFlag, "video", "v", "", "Video name in the library")
	f.StringVarP(&askQuestionFlag, "question", "q", "", "Question to ask")
	f.StringVarP(&askThreadFlag, "thread", "t", "", "Conversation thread id (default: the video name)")
	f.BoolVar(&askResetFlag, "reset", false, "Forget the thread's history before asking")
}

func runAsk(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	prompter := cli.NewPrompter(os.Stdin, out)

	name := askVideoFlag
	if name == "" {
		var ok bool
		if name, ok = prompter.Ask("Video name", ""); !ok || name == "" {
			return fmt.Errorf("a video name is required")
		}
	}

	app := cli.InitApp(ctx, "video-cli", boot.Options{})
	defer app.Close()

	video, err := app.Library.Get(ctx, name)
	if err != nil {
		return err
	}
	if askResetFlag {
		thread := askThreadFlag
		if thread == "" {
			thread = video.Name
		}
		if err := app.Service.ResetThread(ctx, thread); err != nil {
			return err
		}
	}

	ask := func(q string) error {
		answer, err := app.Service.GenerateAnswer(ctx, service.AnswerRequest{
			Path:      video.Path,
			VideoName: video.Name,
			Question:  q,
			ThreadID:  askThreadFlag,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", answer)
		return nil
	}

	if strings.TrimSpace(askQuestionFlag) != "" {
		return ask(askQuestionFlag)
	}

	fmt.Fprintf(out, "Asking about %s. Press Enter on an empty line to finish.\n", video.Name)
	for {
		q, ok := prompter.Ask("Question", "")
		if !ok || q == "" {
			return nil
		}
		if err := ask(q); err != nil {
			return err
		}
	}
}
