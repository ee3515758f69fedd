// cmd/client/main.go is a small terminal client, mostly useful for
// poking at a running server: it joins (or creates) a match, prints
// every event, and reads answers from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/client"
	"github.com/mfigueroa/quizparty/internal/config"
	"github.com/mfigueroa/quizparty/internal/protocol"
)

func main() {
	var (
		matchID = flag.String("match", "", "match id to join or create")
		name    = flag.String("name", "", "display name")
		host    = flag.Bool("host", false, "create the match instead of joining")
		cfgPath = flag.String("config", "", "optional config file")
	)
	flag.Parse()

	if *matchID == "" {
		log.Fatal("usage: client -match <id> [-host] [-name <display name>]")
	}

	cfg, err := config.LoadAndValidate(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	mgr := client.New(client.Options{
		ServerURL:         cfg.Client.ServerURL,
		ReconnectDelay:    cfg.Client.ReconnectDelay.Std(),
		MaxReconnectTries: cfg.Client.MaxReconnectTries,
		Logger:            logger,
	})

	mgr.Subscribe(func(raw []byte) {
		fmt.Printf("<- %s\n", raw)
	})

	userID := uuid.NewString()
	role := client.RoleParticipant
	if *host {
		role = client.RoleHost
	}
	id := client.Identity{MatchID: *matchID, UserID: userID, DisplayName: *name}
	if err := mgr.Connect(context.Background(), role, id); err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Printf("connected as %s (%s); type 'start' or an answer\n", userID, role)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var env protocol.Envelope
		if line == "start" {
			env = protocol.Envelope{
				Type:    protocol.TypeStartGame,
				Payload: protocol.StartCommand{MatchID: *matchID, UserID: userID},
			}
		} else {
			env = protocol.Envelope{
				Type:    protocol.TypeSubmitAnswer,
				Payload: protocol.AnswerCommand{MatchID: *matchID, UserID: userID, Answer: line},
			}
		}
		if !mgr.SendMessage(env, role) {
			fmt.Println("send failed: no open connection")
		}
	}
}
