// Package signals maps OS signals to actions.
package signals

import (
	"context"
	"os"
	"os/signal"
	"reflect"
)

// Action is a function called when an OS signal is recieved.
type Action func()

// Mappings map OS signals to functions
type Mappings map[os.Signal]Action

// Allocate a 1-buffered channel for each signal and do a select
// over all channels - has to use reflect for dynamic numbers of select cases.
// The last case is ctx being done.
func signalHandler(ctx context.Context, mappings Mappings) {

	cases := make([]reflect.SelectCase, len(mappings)+1)
	actions := make([]Action, len(mappings))
	chans := make([]chan os.Signal, 0, len(mappings))

	var idx = 0
	for sig, action := range mappings {
		sigch := make(chan os.Signal, 1)
		chans = append(chans, sigch)

		cases[idx].Dir = reflect.SelectRecv
		cases[idx].Chan = reflect.ValueOf(sigch)

		actions[idx] = action

		signal.Notify(sigch, sig)
		idx++
	}
	defer func() {
		for _, ch := range chans {
			signal.Stop(ch)
		}
	}()

	cases[idx].Dir = reflect.SelectRecv
	cases[idx].Chan = reflect.ValueOf(ctx.Done())

	for {
		chosen, _, _ := reflect.Select(cases)
		if chosen == idx {
			return
		}
		f := actions[chosen]
		f()
	}
}

// RunSignalHandler spawns a go-routine which will call the provided Actions
// when receiving the corresponding signals, until ctx is done.
func RunSignalHandler(ctx context.Context, m Mappings) {
	go signalHandler(ctx, m)
}

// Handle calls the provided Actions when receiving the corresponding
// signals, one at a time, and returns when ctx is done.
func Handle(ctx context.Context, m Mappings) {
	signalHandler(ctx, m)
}
