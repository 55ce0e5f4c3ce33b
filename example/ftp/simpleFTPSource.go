package main

import (
	"context"
	"fmt"
	"log"
	"time"

	imagelink "github.com/blutspende/go-imagelink"
)

type testFtpHandler struct {
}

func (th *testFtpHandler) Connected(session imagelink.Session) {
	fmt.Println("Connected")
}

func (th *testFtpHandler) Disconnected(session imagelink.Session) {
	fmt.Println("Disconnected")
}

func (th *testFtpHandler) Error(session imagelink.Session, typeOfError imagelink.ErrorType, err error) {
	fmt.Println("error : ", typeOfError, err)
}

func main() {
	client := imagelink.CreateNewClient(imagelink.DefaultHost, imagelink.DefaultPort, &testFtpHandler{})
	if err := client.Connect(); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	source := imagelink.CreateNewFTPImageSource("172.23.114.30", 21, "/tests", "*.png", client,
		imagelink.DefaultFTPConfig().UserPass("test", "testpaul").PollInterval(5*time.Second).Viewer("scans"),
	)

	if err := source.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
