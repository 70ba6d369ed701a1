package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/pkg/secretstore"
)

func main() {
	var (
		inPath    = flag.String("in", "", "import KEY=VALUE pairs from this .env file")
		dbPath    = flag.String("badger", getenv("SECRETSTORE_PATH", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("NFTWALLET_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		mnemonic  = flag.Bool("mnemonic", false, "prompt for a wallet mnemonic and store it as WALLET_MNEMONIC")
		path      = flag.String("derivation-path", wallet.DefaultDerivationPath, "derivation path used to show the mnemonic's address")
		list      = flag.Bool("list", false, "list stored keys (values are never printed)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set NFTWALLET_SECRET_KEY or pass -secret-key"))
	}
	if *inPath == "" && !*mnemonic && !*list {
		flag.Usage()
		os.Exit(2)
	}
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o700); err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      *list && *inPath == "" && !*mnemonic,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if *inPath != "" {
		kv, err := godotenv.Read(*inPath)
		if err != nil {
			fatal(err)
		}
		for k, v := range kv {
			if err := ss.SetString(secretstore.EnvPrefix+k, v); err != nil {
				fatal(err)
			}
		}
		fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s（前缀 %s）\n", len(kv), *dbPath, secretstore.EnvPrefix)
	}

	if *mnemonic {
		fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
		mn := strings.Join(strings.Fields(readLine()), " ")
		derived, err := wallet.DeriveFromMnemonic(mn, *path)
		if err != nil {
			fatal(err)
		}
		if err := ss.SetString(secretstore.EnvPrefix+"WALLET_MNEMONIC", mn); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "已保存助记词，%s 对应地址 %s\n", *path, derived.Address)
	}

	if *list {
		keys, err := ss.Keys(secretstore.EnvPrefix)
		if err != nil {
			fatal(err)
		}
		for _, k := range keys {
			fmt.Println(strings.TrimPrefix(k, secretstore.EnvPrefix))
		}
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
