package main

import (
	"fmt"
	"time"

	imagelink "github.com/blutspende/go-imagelink"
)

type MySessionHandler struct {
}

func (s *MySessionHandler) Connected(session imagelink.Session) {
	fmt.Println("Connect Event from", session.RemoteAddress())
}

func (s *MySessionHandler) Disconnected(session imagelink.Session) {
	fmt.Println("Disconnected Event")
}

func (s *MySessionHandler) Error(session imagelink.Session, errorType imagelink.ErrorType, err error) {
	fmt.Println(errorType, err)
}

func main() {

	server := imagelink.CreateNewServer("0.0.0.0", imagelink.DefaultPort, &MySessionHandler{},
		imagelink.WithProxy(imagelink.HAProxySendProxyV2),
		imagelink.WithMaxConnections(2))

	if err := server.Start(); err != nil {
		panic(err)
	}

	images := imagelink.NewImageList(nil, imagelink.DefaultCacheCapacity)
	for {
		server.DrainAll(func(img imagelink.ReceivedImage, flags uint32) {
			position := images.Insert(img, flags)
			fmt.Printf("Image '%s' for '%s' at %d\n", img.Name, img.ViewerName, position)
		})

		// ask for whatever is still missing, Data returns it once it is there
		for i := 0; i < images.Len(); i++ {
			if img, err := images.Data(i); err == nil {
				fmt.Printf("  %d: %v\n", i, img.Bounds())
			}
		}
		time.Sleep(time.Second)
	}
}
