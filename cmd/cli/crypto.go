package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/signature"
	"github.com/turtacn/credcore/internal/infrastructure/keystore"
	"github.com/turtacn/credcore/pkg/constants"
)

func decodeHexFlag(cmd *cobra.Command, name string) ([]byte, error) {
	v, _ := cmd.Flags().GetString(name)
	b, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return b, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash [data]",
		Short: "Print the hex digest of data (or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, _ := cmd.Flags().GetString("alg")
			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			digest, err := primitive.Hash(constants.HashAlgorithm(alg), data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(digest))
			return nil
		},
	}
	cmd.Flags().String("alg", string(constants.HashSHA256), "hash algorithm (SHA256 or SHA512)")
	return cmd
}

func newRandomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Print secure random bytes as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("bytes")
			b, err := primitive.NewProvider().RandomBytes(n)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))
			return nil
		},
	}
	cmd.Flags().Int("bytes", 32, "number of bytes")
	return cmd
}

func newDeriveCmd() *cobra.Command {
	derive := &cobra.Command{
		Use:   "derive",
		Short: "Derive key material with HKDF or PBKDF2",
	}

	hkdfCmd := &cobra.Command{
		Use:   "hkdf",
		Short: "HKDF extract-and-expand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ikm, err := decodeHexFlag(cmd, "ikm")
			if err != nil {
				return err
			}
			salt, err := decodeHexFlag(cmd, "salt")
			if err != nil {
				return err
			}
			info, _ := cmd.Flags().GetString("info")
			length, _ := cmd.Flags().GetInt("length")
			alg, _ := cmd.Flags().GetString("hash")

			d, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
			if err != nil {
				return err
			}
			dk, err := d.HKDFWithHash(constants.HashAlgorithm(alg), ikm, salt, []byte(info), length)
			if err != nil {
				return err
			}
			defer dk.Wipe()
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(dk.KeyMaterial))
			return nil
		},
	}
	hkdfCmd.Flags().String("ikm", "", "input key material (hex)")
	hkdfCmd.Flags().String("salt", "", "salt (hex, optional)")
	hkdfCmd.Flags().String("info", "", "context info")
	hkdfCmd.Flags().Int("length", 32, "output length in bytes")
	hkdfCmd.Flags().String("hash", string(kdf.DefaultHash), "hash algorithm")
	_ = hkdfCmd.MarkFlagRequired("ikm")

	pbkdf2Cmd := &cobra.Command{
		Use:   "pbkdf2",
		Short: "PBKDF2 password stretching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			salt, err := decodeHexFlag(cmd, "salt")
			if err != nil {
				return err
			}
			iterations, _ := cmd.Flags().GetInt("iterations")
			length, _ := cmd.Flags().GetInt("length")
			alg, _ := cmd.Flags().GetString("hash")

			d, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
			if err != nil {
				return err
			}
			dk, err := d.PBKDF2WithHash(constants.HashAlgorithm(alg), []byte(password), salt, iterations, length)
			if err != nil {
				return err
			}
			defer dk.Wipe()
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(dk.KeyMaterial))
			return nil
		},
	}
	pbkdf2Cmd.Flags().String("password", "", "password")
	pbkdf2Cmd.Flags().String("salt", "", "salt (hex, at least 16 bytes)")
	pbkdf2Cmd.Flags().Int("iterations", constants.PBKDF2IterationFloor, "iteration count")
	pbkdf2Cmd.Flags().Int("length", 32, "output length in bytes")
	pbkdf2Cmd.Flags().String("hash", string(kdf.DefaultHash), "hash algorithm")
	_ = pbkdf2Cmd.MarkFlagRequired("password")
	_ = pbkdf2Cmd.MarkFlagRequired("salt")

	derive.AddCommand(hkdfCmd, pbkdf2Cmd)
	return derive
}

type keygenOutput struct {
	Algorithm   constants.Algorithm `json:"algorithm"`
	KeySize     int                 `json:"keySize"`
	PublicKey   string              `json:"publicKey"`
	Fingerprint string              `json:"fingerprint"`
	PrivateKey  string              `json:"privateKey,omitempty"`
}

func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, _ := cmd.Flags().GetString("algorithm")
			size, _ := cmd.Flags().GetInt("key-size")
			showPrivate, _ := cmd.Flags().GetBool("show-private")

			cfg, err := models.NewCryptoConfig(size, constants.Algorithm(alg), constants.HashSHA256, "credctl")
			if err != nil {
				return err
			}
			d, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
			if err != nil {
				return err
			}
			engine := signature.NewEngine(keystore.NewMemoryStore(), primitive.NewProvider(), d)
			kp, err := engine.GenerateKeyPair(cfg)
			if err != nil {
				return err
			}
			defer kp.Wipe()

			out := keygenOutput{
				Algorithm:   kp.Algorithm,
				KeySize:     size,
				PublicKey:   hex.EncodeToString(kp.PublicKey),
				Fingerprint: signature.Fingerprint(kp.PublicKey),
			}
			if showPrivate {
				out.PrivateKey = hex.EncodeToString(kp.PrivateKey)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("algorithm", string(constants.AlgorithmEd25519), "Ed25519, secp256k1 or ECDSA")
	cmd.Flags().Int("key-size", 256, "key size in bits")
	cmd.Flags().Bool("show-private", false, "include the private key in the output")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a detached signature over a message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, _ := cmd.Flags().GetString("algorithm")
			hashAlg, _ := cmd.Flags().GetString("hash")
			message, _ := cmd.Flags().GetString("message")
			pub, err := decodeHexFlag(cmd, "public-key")
			if err != nil {
				return err
			}
			sigBytes, err := decodeHexFlag(cmd, "signature")
			if err != nil {
				return err
			}

			sig := &models.Signature{
				Algorithm:     constants.Algorithm(alg),
				HashAlgorithm: constants.HashAlgorithm(hashAlg),
				Bytes:         sigBytes,
			}
			if err := signature.Check(sig, []byte(message), pub); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	cmd.Flags().String("algorithm", string(constants.AlgorithmEd25519), "signature algorithm")
	cmd.Flags().String("hash", string(constants.HashSHA256), "hash algorithm")
	cmd.Flags().String("message", "", "signed message")
	cmd.Flags().String("public-key", "", "public key (hex)")
	cmd.Flags().String("signature", "", "signature (hex)")
	_ = cmd.MarkFlagRequired("public-key")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}
