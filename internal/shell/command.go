package shell

import "strings"

// Verbs understood by a warden server, in the order they are offered for
// completion.
const (
	VerbPing    = "ping"
	VerbCreate  = "create"
	VerbStop    = "stop"
	VerbDestroy = "destroy"
	VerbSpawn   = "spawn"
	VerbLink    = "link"
	VerbRun     = "run"
	VerbNet     = "net"
	VerbLimit   = "limit"
	VerbInfo    = "info"
	VerbList    = "list"
	VerbHelp    = "help"
)

// Verbs is the fixed list of known verbs.
var Verbs = []string{
	VerbPing,
	VerbCreate,
	VerbStop,
	VerbDestroy,
	VerbSpawn,
	VerbLink,
	VerbRun,
	VerbNet,
	VerbLimit,
	VerbInfo,
	VerbList,
	VerbHelp,
}

// HelpText is printed locally for the help verb.
const HelpText = `ping                          - ping warden
create                        - create new container
destroy <handle>              - shutdown container <handle>
stop <handle>                 - stop all processes in <handle>
spawn <handle> cmd            - spawns cmd inside container <handle>, returns #jobid
link <handle> #jobid          - do blocking read on results from #jobid
run <handle>  cmd             - short hand for link(spawn(cmd)) i.e. runs cmd, blocks for result
list                          - list containers
info <handle>                 - show metadata for container <handle>
limit <handle> mem  [<value>] - set or get the memory limit for the container (in bytes)
limit <handle> disk [<value>] - set or get the disk limit for the container (in 1k blocks)
net <handle> #in              - forward port #in on external interface to container <handle>
net <handle> #out <address[/mask][:port]> - allow traffic from the container <handle> to address <address>
help                          - show help message
Please see README.md for more details.
`

// Normalize prepares tokens for sending. The server expects the command of
// run and spawn as a single argument, so every token after the handle is
// joined back together with single spaces. Other commands are returned
// unchanged. The input slice is never modified.
func Normalize(tokens []string) []string {
	if len(tokens) <= 3 {
		return tokens
	}

	if tokens[0] != VerbRun && tokens[0] != VerbSpawn {
		return tokens
	}

	normalized := make([]string, 0, 3)
	normalized = append(normalized, tokens[0], tokens[1])
	normalized = append(normalized, strings.Join(tokens[2:], " "))

	return normalized
}
