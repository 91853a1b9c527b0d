// Command keygen writes the RSA key pair used to sign session tokens.
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/alim08/tradesite/pkg/auth"
	"github.com/alim08/tradesite/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	bits := flag.Int("bits", 2048, "RSA key size")
	out := flag.String("out", "keys", "output directory")
	flag.Parse()

	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	if err := os.MkdirAll(*out, 0o700); err != nil {
		logger.Log.Fatal("failed to create key directory", zap.String("dir", *out), zap.Error(err))
	}

	privateKey, publicKey, err := auth.GenerateKeyPair(*bits)
	if err != nil {
		logger.Log.Fatal("failed to generate key pair", zap.Error(err))
	}
	privatePath := filepath.Join(*out, "private.pem")
	publicPath := filepath.Join(*out, "public.pem")
	if err := auth.SavePrivateKey(privateKey, privatePath); err != nil {
		logger.Log.Fatal("failed to save private key", zap.Error(err))
	}
	if err := auth.SavePublicKey(publicKey, publicPath); err != nil {
		logger.Log.Fatal("failed to save public key", zap.Error(err))
	}
	logger.Log.Info("key pair written",
		zap.String("private", privatePath),
		zap.String("public", publicPath),
		zap.Int("bits", *bits))
}
