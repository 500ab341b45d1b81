/*
Package config loads overbot configuration.

Config wraps a map[string]any and provides typed accessors that return a
default when a key is missing or has the wrong type. Settings is the typed
view the router, filter chain and command processor read at startup.

	settings, err := config.Load("overbot.yaml")
	if err != nil {
	    return err
	}
	if err := settings.Validate(); err != nil {
	    return err
	}

Duration accepts a time.ParseDuration string, a number of seconds, or a
time.Duration. Int accepts a float64 only when it has no fractional part.

Filter options are kept as a Config so each filter type reads its own keys:

	filters:
	  order: [flood]
	  definitions:
	    flood:
	      type: ratelimit
	      options: {max: 1, window: 1s}

Config is safe for concurrent reads. The underlying map is not modified after
creation.
*/
package config
