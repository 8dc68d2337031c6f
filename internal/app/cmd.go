package app

import (
	"fmt"
	"strings"
)

// Command はhoroバイナリのサブコマンド。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はDockerのHEALTHCHECKから呼ばれる。設定の読み込みは行わない。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "usage: horo [" + strings.Join(names, "|") + "]"
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数が無ければserve。未知のサブコマンドはエラー。2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q; %s", args[0], Usage())
}
