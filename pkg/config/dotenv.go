// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnsureDotenv copies examplePath to envPath when envPath does not exist
// yet, then loads envPath into the process environment. Variables already
// set in the environment win over file values. A missing example file is
// not an error when envPath already exists.
func EnsureDotenv(envPath, examplePath string) error {
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := copyFile(examplePath, envPath); err != nil {
			return fmt.Errorf("seed %s from %s: %w", envPath, examplePath, err)
		}
	}
	return LoadDotenv(envPath)
}

// LoadDotenv reads a KEY=VALUE file and exports each entry that is not
// already present in the environment.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for key, value := range k.All() {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		str, ok := value.(string)
		if !ok {
			str = fmt.Sprintf("%v", value)
		}
		if err := os.Setenv(key, str); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
