package acs

import "time"

type communicationUser struct {
	ID string `json:"id"`
}

type communicationIdentifier struct {
	RawID             string             `json:"rawId,omitempty"`
	CommunicationUser *communicationUser `json:"communicationUser,omitempty"`
}

type identityResponse struct {
	Identity struct {
		ID string `json:"id"`
	} `json:"identity"`
}

type issueTokenRequest struct {
	Scopes []string `json:"scopes"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresOn time.Time `json:"expiresOn"`
}

type chatParticipant struct {
	CommunicationIdentifier communicationIdentifier `json:"communicationIdentifier"`
	DisplayName             string                  `json:"displayName,omitempty"`
}

type createThreadRequest struct {
	Topic        string            `json:"topic"`
	Participants []chatParticipant `json:"participants"`
}

type createThreadResponse struct {
	ChatThread struct {
		ID string `json:"id"`
	} `json:"chatThread"`
}

type addParticipantsRequest struct {
	Participants []chatParticipant `json:"participants"`
}

type sendMessageRequest struct {
	Content           string `json:"content"`
	SenderDisplayName string `json:"senderDisplayName,omitempty"`
	Type              string `json:"type"`
}

type sendMessageResponse struct {
	ID string `json:"id"`
}

type chatMessage struct {
	ID                            string                   `json:"id"`
	Type                          string                   `json:"type"`
	SequenceID                    string                   `json:"sequenceId"`
	CreatedOn                     time.Time                `json:"createdOn"`
	SenderDisplayName             string                   `json:"senderDisplayName"`
	SenderCommunicationIdentifier *communicationIdentifier `json:"senderCommunicationIdentifier"`
	Content                       *struct {
		Message string `json:"message"`
	} `json:"content"`
}

type listMessagesResponse struct {
	Value    []chatMessage `json:"value"`
	NextLink string        `json:"nextLink"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func identifier(id string) communicationIdentifier {
	return communicationIdentifier{RawID: id, CommunicationUser: &communicationUser{ID: id}}
}
