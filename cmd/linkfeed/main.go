// Command linkfeed is a terminal client for the social feed backend's
// realtime layer: it signs in, follows the notification stream, and holds
// one chat conversation open, sending stdin lines as messages.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/natthaphon/linkfeed/app"
	"github.com/natthaphon/linkfeed/chat"
	"github.com/natthaphon/linkfeed/notification"
)

func main() {
	var (
		username = flag.String("user", "", "username to sign in with")
		password = flag.String("pass", "", "password to sign in with")
		friendID = flag.Int("friend", 0, "user ID of the conversation peer")
	)
	flag.Parse()

	if *username == "" || *password == "" || *friendID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// .env is optional; config falls back to defaults and process env.
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	shell, err := app.New(nil, app.WithFeedOptions(
		notification.WithNotifyFunc(func(n notification.Notification) {
			target := notification.ResolveTarget(n)
			fmt.Printf("* %s (%s) %s\n", n.Message, n.ActivityType, target.Href())
		}),
	))
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer shell.Close()

	loginCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := shell.Login(loginCtx, *username, *password); err != nil {
		log.Fatalf("login: %v", err)
	}

	me, err := shell.Identity()
	if err != nil {
		log.Fatalf("identity: %v", err)
	}
	fmt.Printf("signed in as %s (#%d)\n", me.Username, me.UserID)

	session, err := shell.OpenChat(ctx, *friendID,
		chat.WithMessageFunc(func(m chat.Message) {
			printMessage(me.UserID, m)
		}),
	)
	if err != nil {
		log.Fatalf("open chat: %v", err)
	}
	defer shell.CloseChat(*friendID)

	for _, m := range session.Messages() {
		printMessage(me.UserID, m)
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := session.Send(scanner.Text()); err != nil {
				log.Printf("send: %v", err)
			}
		}
		stop()
	}()

	<-ctx.Done()
	fmt.Println("bye")
}

func printMessage(me int, m chat.Message) {
	who := fmt.Sprintf("#%d", m.Sender)
	if m.Sender == me {
		who = "me"
	}
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Text)
}
