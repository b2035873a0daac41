package command

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DK5EN/mcapp-gateway/internal/model"
	"github.com/DK5EN/mcapp-gateway/internal/router"
)

// defaultRegistry returns the closed set of commands the engine executes,
// keyed by their uppercase name (spec.md §4.3's command table). Aliases
// (S/SEARCH, MH/MHEARD) resolve to the same handler.
func defaultRegistry() map[string]Handler {
	reg := map[string]Handler{
		"HELP":     cmdHelp,
		"DICE":     cmdDice,
		"TIME":     cmdTime,
		"STATS":    cmdStats,
		"POS":      cmdPos,
		"GROUP":    cmdGroup,
		"KB":       cmdKB,
		"TOPIC":    cmdTopic,
		"CTCPING":  cmdCtcping,
		"USERINFO": cmdUserinfo,
		"WX":       cmdWeather,
		"WEATHER":  cmdWeather,
		"MHEARD":   cmdMheard,
		"SEARCH":   cmdSearch,
	}
	reg["MH"] = reg["MHEARD"]
	reg["S"] = reg["SEARCH"]
	return reg
}

func cmdHelp(_ context.Context, _ *Engine, _ string, _ map[string]string, _ []string) (string, error) {
	return "commands: help dice time stats pos group kb topic ctcping userinfo wx mheard search", nil
}

func cmdDice(_ context.Context, _ *Engine, _ string, _ map[string]string, positional []string) (string, error) {
	sides := 6
	if len(positional) > 0 {
		n, err := strconv.Atoi(positional[0])
		if err != nil || n < 2 {
			return "", fmt.Errorf("invalid dice sides %q", positional[0])
		}
		sides = n
	}
	roll := rand.Intn(sides) + 1
	return fmt.Sprintf("🎲 d%d -> %d", sides, roll), nil
}

func cmdTime(_ context.Context, _ *Engine, _ string, _ map[string]string, _ []string) (string, error) {
	return time.Now().UTC().Format("2006-01-02 15:04:05 MST"), nil
}

func cmdStats(ctx context.Context, e *Engine, _ string, _ map[string]string, _ []string) (string, error) {
	if e.store == nil {
		return "", fmt.Errorf("stats unavailable")
	}
	summary, err := e.store.ConversationSummary(ctx)
	if err != nil {
		return "", fmt.Errorf("stats query failed: %w", err)
	}
	if len(summary) == 0 {
		return "no conversations recorded", nil
	}
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "%s:%d ", k, summary[k])
	}
	return strings.TrimSpace(b.String()), nil
}

func cmdPos(ctx context.Context, e *Engine, requester string, _ map[string]string, positional []string) (string, error) {
	target := requester
	if len(positional) > 0 {
		target = positional[0]
	}
	target = strings.ToUpper(target)
	if e.store == nil {
		return "", fmt.Errorf("pos unavailable")
	}
	pos, err := e.store.PositionByCallsign(ctx, target)
	if err != nil {
		return fmt.Sprintf("position lookup for %s: not yet beaconed", target), nil
	}
	return fmt.Sprintf("%s: %.5f,%.5f alt %.0fm, last seen %s",
		target, pos.Lat, pos.Lon, pos.AltM,
		time.UnixMilli(pos.LastSeenMS).UTC().Format("2006-01-02 15:04:05 MST")), nil
}

func cmdGroup(_ context.Context, e *Engine, requester string, _ map[string]string, positional []string) (string, error) {
	if len(positional) == 0 {
		return "", fmt.Errorf("group requires on|off")
	}
	switch strings.ToUpper(positional[0]) {
	case "ON":
		e.SetGroupMode(true)
	case "OFF":
		e.SetGroupMode(false)
	default:
		return "", fmt.Errorf("group requires on|off")
	}
	_ = requester
	return fmt.Sprintf("group responses %s", strings.ToLower(positional[0])), nil
}

var knowledgeBase = map[string]string{
	"CALLSIGN": "a station's amateur radio identifier",
	"MESHCOM":  "the LoRa mesh this gateway bridges to the web",
}

func cmdKB(_ context.Context, _ *Engine, _ string, _ map[string]string, positional []string) (string, error) {
	if len(positional) == 0 {
		return "", fmt.Errorf("kb requires a topic")
	}
	topic := strings.ToUpper(strings.Join(positional, " "))
	if v, ok := knowledgeBase[topic]; ok {
		return v, nil
	}
	return fmt.Sprintf("no kb entry for %q", topic), nil
}

func cmdTopic(_ context.Context, e *Engine, requester string, args map[string]string, positional []string) (string, error) {
	if len(positional) == 0 && len(args) == 0 {
		return e.beacons.list(), nil
	}
	if len(positional) > 0 && strings.ToUpper(positional[0]) == "DELETE" {
		if len(positional) < 2 {
			return "", fmt.Errorf("topic delete requires a group")
		}
		group := strings.ToUpper(positional[1])
		if e.beacons.stop(group) {
			return fmt.Sprintf("topic beacon for %s stopped", group), nil
		}
		return fmt.Sprintf("no active topic for %s", group), nil
	}

	group := strings.ToUpper(requester)
	if g, ok := args["GROUP"]; ok {
		group = strings.ToUpper(g)
	}
	interval := 60
	if iv, ok := args["INTERVAL"]; ok {
		if n, err := strconv.Atoi(iv); err == nil && n > 0 {
			interval = n
		}
	}
	text := strings.Join(positional, " ")
	if text == "" {
		return "", fmt.Errorf("topic requires text")
	}
	e.beacons.start(group, text, interval)
	return fmt.Sprintf("topic beacon started for %s every %dm", group, interval), nil
}

func cmdCtcping(_ context.Context, e *Engine, requester string, args map[string]string, _ []string) (string, error) {
	target, ok := args["CALL"]
	if !ok {
		return "", fmt.Errorf("ctcping requires call:<callsign>")
	}
	target = strings.ToUpper(target)
	repeat := 3
	if r, ok := args["REPEAT"]; ok {
		if n, err := strconv.Atoi(r); err == nil && n > 0 {
			repeat = n
		}
	}

	test := e.ping.start(target, requester, repeat)
	go e.runPingTest(test)
	return fmt.Sprintf("ping test started for %s (%d pings)", target, repeat), nil
}

// runPingTest drives one !ctcping test to completion: it sends repeat
// pings spaced 2s apart, waits for the per-ping timeout window, then
// reports loss/RTT summary back to the requester over the mesh.
func (e *Engine) runPingTest(test *pingTest) {
	defer e.ping.remove(test.testID)

	for seq := 0; seq < test.repeat; seq++ {
		id := e.NextMsgID()
		echoID := int(id % 1000)
		test.awaitEcho(id, seq)
		e.router.Publish("command", router.TopicUDPMessage, model.Message{
			Dst:   test.target,
			Text:  fmt.Sprintf("CTC %03d{%03d", echoID, echoID),
			Type:  model.TypeMsg,
			MsgID: &id,
		})
		time.Sleep(2 * time.Second)
	}

	deadline := time.Now().Add(pingPerPingTimeout + time.Second)
	for time.Now().Before(deadline) {
		if done, _ := test.checkCompletion(); done {
			break
		}
		time.Sleep(time.Second)
	}

	lossPct, minRTT, avgRTT, maxRTT := test.summary()
	summary := fmt.Sprintf("ctcping %s: %.0f%% loss, rtt min/avg/max %d/%d/%dms",
		test.target, lossPct, minRTT, avgRTT, maxRTT)
	e.router.Publish("command", router.TopicUDPMessage, model.Message{
		Dst:  test.requester,
		Text: summary,
		Type: model.TypeMsg,
	})
}

func cmdUserinfo(ctx context.Context, e *Engine, requester string, _ map[string]string, positional []string) (string, error) {
	target := requester
	if len(positional) > 0 {
		target = positional[0]
	}
	target = strings.ToUpper(target)
	if e.store == nil {
		return "", fmt.Errorf("userinfo unavailable")
	}
	pos, err := e.store.PositionByCallsign(ctx, target)
	if err != nil {
		return fmt.Sprintf("userinfo for %s: not yet tracked", target), nil
	}
	firmware := pos.Firmware
	if firmware == "" {
		firmware = "unknown"
	}
	return fmt.Sprintf("%s: hw_id %d, firmware %s, last heard rssi %ddBm/snr %.1fdB",
		target, pos.HWID, firmware, pos.LastRSSI, pos.LastSNR), nil
}

func cmdWeather(ctx context.Context, e *Engine, _ string, _ map[string]string, _ []string) (string, error) {
	if e.weatherCache == nil || e.weatherSvc == nil {
		return "weather unavailable", nil
	}
	lat, lon, ok := e.weatherCache.Get()
	if !ok {
		return "weather unavailable: no cached position", nil
	}
	cond, err := e.weatherSvc.Current(ctx, lat, lon)
	if err != nil {
		return "", fmt.Errorf("weather lookup failed: %w", err)
	}
	return fmt.Sprintf("%.1f°C, %.0f%% humidity, %s", cond.TemperatureC, cond.HumidityPct, cond.Condition), nil
}

func cmdMheard(ctx context.Context, e *Engine, _ string, _ map[string]string, positional []string) (string, error) {
	if e.store == nil {
		return "", fmt.Errorf("mheard unavailable")
	}
	hourly := len(positional) > 0 && strings.EqualFold(positional[0], "hourly")
	until := time.Now()
	since := until.Add(-24 * time.Hour)
	stats, err := e.store.MHeardStats(ctx, since.UnixMilli(), until.UnixMilli(), hourly)
	if err != nil {
		return "", fmt.Errorf("mheard query failed: %w", err)
	}
	return fmt.Sprintf("%d stations heard in the last 24h", len(stats)), nil
}

func cmdSearch(ctx context.Context, e *Engine, _ string, _ map[string]string, positional []string) (string, error) {
	if len(positional) == 0 {
		return "", fmt.Errorf("search requires a term")
	}
	term := strings.Join(positional, " ")
	if e.store == nil {
		return "", fmt.Errorf("search unavailable")
	}
	hits, err := e.store.SearchMessages(ctx, term)
	if err != nil {
		return "", fmt.Errorf("search query failed: %w", err)
	}
	if len(hits) == 0 {
		return fmt.Sprintf("no messages matching %q", term), nil
	}
	var b strings.Builder
	for i, m := range hits {
		if i >= 3 {
			fmt.Fprintf(&b, "(+%d more) ", len(hits)-3)
			break
		}
		fmt.Fprintf(&b, "%s> %s  ", m.Src, m.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
