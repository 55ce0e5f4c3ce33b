package imagelink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/blutspende/go-imagelink/protocol"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrFtpLoginFailed = errors.New("FTP Login Failed")
var ErrConnectionFailed = errors.New("connection error")
var ErrListFilesFailed = errors.New("failed to access files for listing")
var ErrDownloadFileFailed = errors.New("download file failed")

type ProcessStrategy string

// after serving do nothing with the file, it is announced again on a restart
const PROCESS_STRATEGY_DONOTHING ProcessStrategy = "donothing"

// after serving delete the file
const PROCESS_STRATEGY_DELETE ProcessStrategy = "delete"

// after serving move the file to the save folder below the input path
const PROCESS_STRATEGY_MOVE2SAVE ProcessStrategy = "move2save"

// LazyPublisher is what the FTP source needs from a ClientSession.
type LazyPublisher interface {
	NextImageID() uint64
	PublishLazy(imageID uint64, name, viewerName string, provider ImageDataProvider, replaceExisting bool) error
}

type ftpConfiguration struct {
	user            string
	password        string
	pollInterval    time.Duration
	dialTimeout     time.Duration
	processStrategy ProcessStrategy
	viewerName      string
	logger          zerolog.Logger
}

func DefaultFTPConfig() *ftpConfiguration {
	return &ftpConfiguration{
		user:            "anonymous",
		password:        "anonymous",
		pollInterval:    DefaultTimings.PollInterval,
		dialTimeout:     DefaultTimings.Timeout,
		processStrategy: PROCESS_STRATEGY_DONOTHING,
		logger:          log.Logger.With().Str("component", "imagelink-ftp").Logger(),
	}
}

func (conf *ftpConfiguration) UserPass(user, pass string) *ftpConfiguration {
	conf.user = user
	conf.password = pass
	return conf
}

func (conf *ftpConfiguration) PollInterval(pollInterval time.Duration) *ftpConfiguration {
	conf.pollInterval = pollInterval
	return conf
}

func (conf *ftpConfiguration) DialTimeout(dialTimeout time.Duration) *ftpConfiguration {
	conf.dialTimeout = dialTimeout
	return conf
}

func (conf *ftpConfiguration) ProcessStrategy(strategy ProcessStrategy) *ftpConfiguration {
	conf.processStrategy = strategy
	return conf
}

func (conf *ftpConfiguration) Viewer(viewerName string) *ftpConfiguration {
	conf.viewerName = viewerName
	return conf
}

func (conf *ftpConfiguration) Logger(logger zerolog.Logger) *ftpConfiguration {
	conf.logger = logger
	return conf
}

// FTPImageSource polls a directory of an FTP server and announces every new
// file matching the pattern lazily. The file is downloaded when the
// consumer asks for it.
type FTPImageSource struct {
	hostname         string
	hostport         int
	inputFilePath    string
	inputFilePattern string
	publisher        LazyPublisher
	config           *ftpConfiguration

	mtx     sync.Mutex // guards the control connection
	ftpConn *ftp.ServerConn

	seenMtx sync.Mutex
	seen    map[string]uint64
}

func CreateNewFTPImageSource(hostname string, hostport int,
	inputFilePath, inputFilePattern string,
	publisher LazyPublisher, config *ftpConfiguration) *FTPImageSource {
	if config == nil {
		config = DefaultFTPConfig()
	}
	if inputFilePattern == "" {
		inputFilePattern = "*"
	}
	return &FTPImageSource{
		hostname:         hostname,
		hostport:         hostport,
		inputFilePath:    inputFilePath,
		inputFilePattern: inputFilePattern,
		publisher:        publisher,
		config:           config,
		seen:             make(map[string]uint64),
	}
}

// Connect dials and logs in. Run does this itself.
func (s *FTPImageSource) Connect() error {
	return s.connectToServer()
}

// Run polls until ctx is done. Errors while polling are logged and the
// connection is set up again on the next poll.
func (s *FTPImageSource) Run(ctx context.Context) error {
	if err := s.connectToServer(); err != nil {
		return err
	}
	defer s.Close()

	ticker := time.NewTicker(s.config.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Poll(); err != nil {
			s.config.logger.Error().Err(err).Msg("Poll")
			var netErr net.Error
			if errors.As(err, &netErr) || errors.Is(err, ErrListFilesFailed) {
				s.reconnect()
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll lists the input directory once and announces the files not seen
// before. Returns how many were announced.
func (s *FTPImageSource) Poll() (int, error) {
	s.mtx.Lock()
	if s.ftpConn == nil {
		s.mtx.Unlock()
		return 0, ErrConnectionFailed
	}
	entries, err := s.ftpConn.List(s.inputFilePath)
	s.mtx.Unlock()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrListFilesFailed, err)
	}

	announced := 0
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		matched, err := path.Match(s.inputFilePattern, entry.Name)
		if err != nil {
			return announced, err
		}
		if !matched {
			continue
		}

		remotePath := path.Join(s.inputFilePath, entry.Name)
		s.seenMtx.Lock()
		_, known := s.seen[remotePath]
		s.seenMtx.Unlock()
		if known {
			continue
		}

		imageID := s.publisher.NextImageID()
		if err := s.publisher.PublishLazy(imageID, entry.Name, s.config.viewerName, s.provider(remotePath), false); err != nil {
			return announced, err
		}
		s.config.logger.Info().Str("file", remotePath).Uint64("imageId", imageID).Msg("announced")

		s.seenMtx.Lock()
		s.seen[remotePath] = imageID
		s.seenMtx.Unlock()
		announced++
	}
	return announced, nil
}

func (s *FTPImageSource) provider(remotePath string) ImageDataProvider {
	return ImageDataProviderFunc(func(imageID uint64) (protocol.ImageBuffer, bool) {
		content, err := s.Download(remotePath)
		if err != nil {
			s.config.logger.Error().Err(err).Str("file", remotePath).Msg("Download")
			return protocol.EmptyImageBuffer(remotePath), false
		}
		buffer := protocol.EncodedFileBuffer(remotePath, content)
		if config, _, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
			buffer.Width = uint32(config.Width)
			buffer.Height = uint32(config.Height)
		}
		return buffer, !buffer.IsEmpty()
	})
}

// Download fetches a file and applies the process strategy afterwards.
func (s *FTPImageSource) Download(remotePath string) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.ftpConn == nil {
		return nil, ErrConnectionFailed
	}

	fileReader, err := s.ftpConn.Retr(remotePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFileFailed, err)
	}
	content, err := io.ReadAll(fileReader)
	fileReader.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFileFailed, err)
	}

	switch s.config.processStrategy {
	case PROCESS_STRATEGY_DONOTHING:
	case PROCESS_STRATEGY_DELETE:
		if err := s.ftpConn.Delete(remotePath); err != nil {
			s.config.logger.Error().Err(err).Str("file", remotePath).Msg("Failed to delete file")
		}
	case PROCESS_STRATEGY_MOVE2SAVE:
		target := path.Join(s.inputFilePath, "save", path.Base(remotePath))
		if err := s.ftpConn.Rename(remotePath, target); err != nil {
			s.config.logger.Error().Err(err).Str("file", remotePath).Msg("Failed to rename file")
		}
	}

	return content, nil
}

// Seen maps every announced remote path to its image id.
func (s *FTPImageSource) Seen() map[string]uint64 {
	s.seenMtx.Lock()
	defer s.seenMtx.Unlock()
	seen := make(map[string]uint64, len(s.seen))
	for remotePath, imageID := range s.seen {
		seen[remotePath] = imageID
	}
	return seen
}

func (s *FTPImageSource) connectToServer() error {
	address := net.JoinHostPort(s.hostname, strconv.Itoa(s.hostport))
	conn, err := ftp.Dial(address, ftp.DialWithTimeout(s.config.dialTimeout))
	if err != nil {
		s.config.logger.Error().Err(err).Str("address", address).Msg("Open - Dial")
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := conn.Login(s.config.user, s.config.password); err != nil {
		s.config.logger.Error().Err(err).Msg("Open - Login")
		conn.Quit()
		return fmt.Errorf("%w: %v", ErrFtpLoginFailed, err)
	}

	s.mtx.Lock()
	s.ftpConn = conn
	s.mtx.Unlock()
	return nil
}

func (s *FTPImageSource) reconnect() {
	s.Close()
	s.config.logger.Info().Msg("Lost connection, trying to reconnect to server...")
	if err := s.connectToServer(); err != nil {
		s.config.logger.Warn().Err(err).Msg("reconnect")
	}
}

func (s *FTPImageSource) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.ftpConn == nil {
		return nil
	}
	err := s.ftpConn.Quit()
	s.ftpConn = nil
	return err
}

func (s *FTPImageSource) RemoteAddress() string {
	return net.JoinHostPort(s.hostname, strconv.Itoa(s.hostport))
}
