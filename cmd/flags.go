package cmd

import "fmt"

// mustFlag reads a flag through one of the pflag getters, e.g.
// mustFlag(cmd.Flags().GetInt, "level"). Flags are registered in init(), so a
// lookup failure is a wiring bug and panics.
func mustFlag[T any](get func(string) (T, error), name string) T {
	v, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("read --%s: %v", name, err))
	}
	return v
}
