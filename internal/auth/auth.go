// Package auth resolves model API keys and checks them against the provider.
package auth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

const credentialDir = ".video-summarizer"

// ParameterGetter is the subset of the SSM client used to read secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// KeySource says where a provider's key may come from.
type KeySource struct {
	// EnvVar is checked first, e.g. GEMINI_API_KEY.
	EnvVar string
	// SSM and SSMParam enable the Parameter Store lookup.
	SSM      ParameterGetter
	SSMParam string
	// GPGFile is a file name under ~/.video-summarizer, decrypted with gpg.
	GPGFile string
}

// GeminiKeySource is the lookup used for the Google provider.
func GeminiKeySource(client ParameterGetter, param string) KeySource {
	return KeySource{EnvVar: "GEMINI_API_KEY", SSM: client, SSMParam: param, GPGFile: "credentials.gpg"}
}

// OpenAIKeySource is the lookup used for the OpenAI provider.
func OpenAIKeySource(client ParameterGetter, param string) KeySource {
	return KeySource{EnvVar: "OPENAI_API_KEY", SSM: client, SSMParam: param, GPGFile: "openai.gpg"}
}

// GetAPIKey retrieves an API key from the first source that has one:
//  1. the environment variable
//  2. SSM Parameter Store, when a client and parameter are configured
//  3. a GPG-encrypted file under ~/.video-summarizer
func GetAPIKey(ctx context.Context, src KeySource) (string, error) {
	if src.EnvVar != "" {
		if key := os.Getenv(src.EnvVar); key != "" {
			log.Debug().Str("envVar", src.EnvVar).Msg("Using API key from environment variable")
			return key, nil
		}
	}

	if src.SSM != nil && src.SSMParam != "" {
		key, err := getFromSSM(ctx, src.SSM, src.SSMParam)
		if err == nil && key != "" {
			return key, nil
		}
		log.Warn().Err(err).Str("param", src.SSMParam).Msg("API key not available from SSM")
	}

	if src.GPGFile != "" {
		key, err := getFromGPG(src.GPGFile)
		if err == nil && key != "" {
			log.Debug().Msg("Using API key from GPG encrypted file")
			return key, nil
		}
		log.Debug().Err(err).Msg("API key not available from GPG file")
	}

	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Message: fmt.Sprintf("API key not found. Set %s, configure SSM_API_KEY_PARAM, or add ~/%s/%s", src.EnvVar, credentialDir, src.GPGFile),
	}
}

func getFromSSM(ctx context.Context, client ParameterGetter, name string) (string, error) {
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter: %w", err)
	}
	if out.Parameter == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", name)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return strings.TrimSpace(aws.ToString(out.Parameter.Value)), nil
}

// getFromGPG decrypts the API key from a GPG-encrypted credentials file.
func getFromGPG(file string) (string, error) {
	credPath, err := getCredentialPath(file)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}
	if passphrasePath, ok := passphraseFile(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
	}
	args = append(args, credPath)

	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func getCredentialPath(file string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, file), nil
}

// passphraseFile finds .gpg-passphrase next to the executable or in the
// working directory. Files readable by group or others are ignored.
func passphraseFile() (string, bool) {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".gpg-passphrase"))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ".gpg-passphrase"))
	}

	for _, p := range candidates {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if mode := fi.Mode().Perm(); mode&0o077 != 0 {
			log.Warn().
				Str("passphrase_file", p).
				Str("permissions", fmt.Sprintf("%04o", mode)).
				Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			continue
		}
		return p, true
	}
	return "", false
}
