package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relaychat/relaychat/client"
	"github.com/relaychat/relaychat/config"
	"github.com/relaychat/relaychat/wire"
)

func main() {
	cfgFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadClient(*cfgFile)
	if err != nil {
		fmt.Println("startup failed:", err)
		os.Exit(1)
	}

	nick := cfg.Nickname
	if nick == "" {
		fmt.Print("Enter your nickname: ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		nick = trimNewline(line)
	}

	conn, err := client.Dial(cfg.ServerAddress)
	if err != nil {
		fmt.Println("failed to connect:", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.Send(wire.NewFrame(wire.OpRegisterNick, nick)); err != nil {
		fmt.Println("registration failed:", err)
		os.Exit(1)
	}
	reply, err := conn.Read()
	if err != nil {
		fmt.Println("registration failed:", err)
		os.Exit(1)
	}
	if reply.Op == wire.OpError {
		code, _ := wire.ErrCodeOf(reply)
		fmt.Println("registration rejected:", code)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s as %s\n", cfg.ServerAddress, nick)

	watchdog := client.NewWatchdog(
		conn,
		time.Duration(cfg.KeepAliveAfter)*time.Second,
		time.Duration(cfg.UnresponsiveAfter)*time.Second,
	)
	go watchdog.Run()

	repl := client.NewREPL(conn, os.Stdout)
	go repl.RenderLoop(watchdog)

	go func() {
		<-watchdog.Unresponsive
		fmt.Println("server unresponsive, exiting")
		os.Exit(1)
	}()

	if err := repl.Run(os.Stdin); err != nil {
		fmt.Println("exiting:", err)
		os.Exit(1)
	}
	watchdog.Stop()
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
