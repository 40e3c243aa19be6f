package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/traffic/ipclauncher"

	ipc "github.com/james-barrow/golang-ipc"
)

// fl-traffic-agent receives launcher commands on the IPC pipe and prints them
// as Mininet CLI lines ("<host> <command>"), ready to be fed to the CLI.
func main() {
	pipeName := flag.String("pipe", ipclauncher.DefaultPipeName, "IPC pipe name")
	flag.Parse()

	server, err := ipc.StartServer(*pipeName, nil)
	if err != nil {
		logger.MainLog.Fatalf("Failed to start IPC server: %v", err)
	}
	logger.MainLog.Infof("Listening for traffic commands on pipe %s", *pipeName)

	running := make(map[string]string) // host/profile -> command
	for {
		msg, err := server.Read()
		if err != nil {
			logger.MainLog.Errorf("IPC read failed: %v", err)
			os.Exit(1)
		}
		if msg.MsgType <= 0 {
			// Connection status messages from the IPC library.
			continue
		}
		body, err := ipclauncher.Decode(msg.MsgType, msg.Data)
		if err != nil {
			logger.MainLog.Warnf("Ignoring message: %v", err)
			continue
		}
		switch b := body.(type) {
		case ipclauncher.StartMessageBody:
			cmd, err := ipclauncher.Command(b.Profile)
			if err != nil {
				logger.MainLog.Warnf("Cannot launch %s on %s: %v", b.Profile.Name, b.Host, err)
				continue
			}
			running[b.Host+"/"+b.Profile.Name] = cmd
			fmt.Printf("%s %s > /dev/null 2>&1 &\n", b.Host, cmd)
		case ipclauncher.StopMessageBody:
			key := b.Host + "/" + b.Profile
			cmd, ok := running[key]
			if !ok {
				continue
			}
			delete(running, key)
			fmt.Printf("%s pkill -f %q\n", b.Host, strings.TrimPrefix(cmd, timeoutPrefix(cmd)))
		}
	}
}

// timeoutPrefix returns the "timeout N " prefix of cmd, if any.
func timeoutPrefix(cmd string) string {
	if !strings.HasPrefix(cmd, "timeout ") {
		return ""
	}
	rest := strings.TrimPrefix(cmd, "timeout ")
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		return cmd[:len("timeout ")+i+1]
	}
	return ""
}
