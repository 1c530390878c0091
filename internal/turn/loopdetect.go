package turn

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
)

// toolLoopState supplements the step budget (§4.3 supplement): if the same
// tool keeps firing with identical arguments and producing identical
// results, the turn is stuck rather than making progress. A short window of
// "warning" repeats nudges the model; a longer run of "critical" repeats
// ends the turn with a synthesized final message.
type toolLoopState struct {
	history []loopEntry
}

type loopEntry struct {
	name   string
	hash   string
	result string
}

const (
	loopWarnThreshold     = 2 // identical (name,args) calls before a nudge
	loopCriticalThreshold = 4 // identical (name,args,result) calls before a hard stop
)

// record hashes name+args and appends a pending entry (result filled in by
// recordResult once the tool has actually run); it returns the hash so the
// caller can correlate the two calls.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	hash := hashCall(name, args)
	s.history = append(s.history, loopEntry{name: name, hash: hash})
	return hash
}

// recordResult fills in the result for the most recent entry matching hash.
func (s *toolLoopState) recordResult(hash, result string) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].hash == hash && s.history[i].result == "" {
			s.history[i].result = result
			return
		}
	}
}

// detect looks at the trailing run of entries matching name+hash and
// returns ("warning"|"critical"|"", message).
func (s *toolLoopState) detect(name, hash string) (string, string) {
	sameArgs := 0
	sameResult := 0
	var lastResult string
	haveLastResult := false
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if e.name != name || e.hash != hash {
			break
		}
		sameArgs++
		if !haveLastResult {
			lastResult = e.result
			haveLastResult = true
			sameResult = 1
		} else if e.result == lastResult {
			sameResult++
		} else {
			break
		}
	}
	if sameResult >= loopCriticalThreshold {
		return "critical", "tool " + name + " repeated with identical arguments and results " +
			strconv.Itoa(sameResult) + " times with no progress"
	}
	if sameArgs >= loopWarnThreshold {
		return "warning", "tool " + name + " was just called with the same arguments; consider a different approach before retrying"
	}
	return "", ""
}

func hashCall(name string, args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]interface{}, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(append([]byte(name+"|"), b...))
	return hex.EncodeToString(sum[:])
}
