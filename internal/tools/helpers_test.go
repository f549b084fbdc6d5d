package tools

import "ai-receptionist/internal/telephony"

func telephonyRequest() telephony.InboundCallRequest {
	return telephony.InboundCallRequest{ProviderCallID: "vonage-uuid", From: "+15559998888", To: "+15550001111"}
}
