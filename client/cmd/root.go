package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/chat-it/internal/client"
)

var (
	serverAddr  string
	userName    string
	downloadDir string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:  `chat-it`,
	Long: `chat-it is a chat client with server relayed file transfers`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logrus.New()
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
		if userName == "" {
			fmt.Fprintln(os.Stderr, "a username is required, pass --name")
			os.Exit(1)
		}

		c := client.New(client.Config{
			ServerAddr:   serverAddr,
			Name:         userName,
			DownloadDir:  downloadDir,
			Logger:       log,
			ShowProgress: true,
		})
		if err := c.Connect(context.Background()); err != nil {
			log.Fatal(err)
		}
		defer c.Close()

		// Print server traffic until the connection goes away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for event := range c.Events() {
				fmt.Println(event)
			}
		}()

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if quit := runLine(c, log, line); quit {
				break
			}
		}

		<-done
		fmt.Println("exiting...")
	},
}

// runLine executes one console line. It reports whether the session ended.
func runLine(c *client.Client, log *logrus.Logger, line string) bool {
	switch {
	case line == "/quit":
		if err := c.SendLine(line); err != nil {
			log.Error(err)
		}
		return true

	case line == "/accept":
		if err := c.AcceptFile(""); err != nil {
			log.Error(err)
		}

	case line == "/reject":
		if err := c.RejectFile(""); err != nil {
			log.Error(err)
		}

	case strings.HasPrefix(line, "/sendfile "):
		fields := strings.Fields(line)
		if len(fields) != 3 {
			fmt.Println("Usage: /sendfile <username> <path>")
			return false
		}
		if err := c.SendFile(fields[1], fields[2]); err != nil {
			log.Error(err)
		}

	default:
		if err := c.SendLine(line); err != nil {
			log.Error(err)
			return true
		}
	}
	return false
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&serverAddr, "server", "localhost:5000", "server address to connect to")
	rootCmd.Flags().StringVar(&userName, "name", "", "username to chat as")
	rootCmd.Flags().StringVar(&downloadDir, "downloads", "", "directory for received files (default Users/<name>)")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}
